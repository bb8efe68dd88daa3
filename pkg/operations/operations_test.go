package operations

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/energylab/metronom/pkg/metrolib"
)

func testDeps(t *testing.T) Deps {
	t.Helper()
	return Deps{
		KnownHostsPath: t.TempDir() + "/known_hosts",
		ScriptDir:      t.TempDir(),
		SocketTimeout:  2 * time.Second,
	}
}

func create(t *testing.T, reg *metrolib.Registry, typ, args string) metrolib.Operation {
	t.Helper()
	a, err := metrolib.ParseArgs(args)
	if err != nil {
		t.Fatalf("ParseArgs(%q): %v", args, err)
	}
	op, err := reg.Create(typ, "op", metrolib.NoPause, a)
	if err != nil {
		t.Fatalf("Create(%s, %q): %v", typ, args, err)
	}
	return op
}

// execute runs the full hook sequence of op.
func execute(t *testing.T, op metrolib.Operation) error {
	t.Helper()
	ctx := context.Background()
	if _, err := op.Before(ctx); err != nil {
		return err
	}
	runErr := op.Run(ctx)
	if err := op.After(ctx); err != nil && runErr == nil {
		return err
	}
	return runErr
}

func TestRegister_AllKinds(t *testing.T) {
	reg := NewRegistry(testDeps(t))
	for _, name := range []string{
		TypeIdle, TypeCryptoKeygen, TypeCryptoSign, TypeCryptoVerify, TypeCryptoHash,
		TypeNetworkSingle, TypeNetworkMulti, TypeWeb, TypeFTPFetch, TypeSFTPFetch, TypeScript,
	} {
		if !reg.Has(name) {
			t.Errorf("%s not registered", name)
		}
	}
}

func TestIdle(t *testing.T) {
	clock := metrolib.NewManualClock(0, time.Now())
	deps := testDeps(t)
	deps.Clock = clock
	reg := NewRegistry(deps)

	op := create(t, reg, TypeIdle, "duration_ms=250")
	if err := execute(t, op); err != nil {
		t.Fatalf("idle: %v", err)
	}
	if clock.NowMs() != 250 {
		t.Errorf("slept %vms, want 250", clock.NowMs())
	}
	if op.Debug() != "duration_ms=250" {
		t.Errorf("Debug = %q", op.Debug())
	}

	def := create(t, reg, TypeIdle, "")
	_ = execute(t, def)
	if clock.NowMs() != 1250 {
		t.Errorf("default idle did not sleep 1000ms, clock at %v", clock.NowMs())
	}

	a, _ := metrolib.ParseArgs("duration_ms=soon")
	if _, err := reg.Create(TypeIdle, "x", metrolib.NoPause, a); !errors.Is(err, metrolib.ErrInvalidArgs) {
		t.Errorf("bad duration: err = %v", err)
	}
}

func TestParserIntegration(t *testing.T) {
	p := metrolib.NewParser(NewRegistry(testDeps(t)))
	lines, err := p.ExpandLines("2;P5000;sig;crypto-sign;alg=ed25519\n1;;nap;idle;duration_ms=1\n")
	if err != nil {
		t.Fatalf("ExpandLines: %v", err)
	}
	if len(lines) != 3 {
		t.Fatalf("lines = %q", lines)
	}
	if _, err := p.ExpandLines("1;;bad;crypto-sign;alg=dsa1024\n"); !errors.Is(err, metrolib.ErrInvalidArgs) {
		t.Errorf("unsupported alg: err = %v", err)
	}
}
