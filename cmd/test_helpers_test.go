package cmd

import (
	"bytes"
	"flag"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/urfave/cli"
)

// captureOutput runs f with stdout and stderr redirected to pipes that
// are drained while f runs.
func captureOutput(f func()) (stdout, stderr string) {
	drain := func(target **os.File) (restore func() string) {
		r, w, _ := os.Pipe()
		old := *target
		*target = w
		done := make(chan string)
		go func() {
			var b bytes.Buffer
			_, _ = io.Copy(&b, r)
			r.Close()
			done <- b.String()
		}()
		return func() string {
			w.Close()
			*target = old
			return <-done
		}
	}
	out := drain(&os.Stdout)
	errOut := drain(&os.Stderr)
	f()
	return out(), errOut()
}

func assertContains(t *testing.T, output, want string) {
	t.Helper()
	if !strings.Contains(output, want) {
		t.Errorf("output lacks %q:\n%s", want, output)
	}
}

func assertNotContains(t *testing.T, output, unwanted string) {
	t.Helper()
	if strings.Contains(output, unwanted) {
		t.Errorf("output has %q:\n%s", unwanted, output)
	}
}

func assertContainsAll(t *testing.T, output string, want []string) {
	t.Helper()
	for _, w := range want {
		assertContains(t, output, w)
	}
}

// assertErrorFormat checks for the "metronom: cmd[action]:" prefix of
// runtime errors.
func assertErrorFormat(t *testing.T, output, cmd, action string) {
	t.Helper()
	assertContains(t, output, "metronom: "+cmd+"["+action+"]:")
}

// assertLineCount checks that output has at least min lines.
func assertLineCount(t *testing.T, output string, min int) {
	t.Helper()
	if n := len(strings.Split(strings.TrimSpace(output), "\n")); n < min {
		t.Errorf("got %d lines, want at least %d:\n%s", n, min, output)
	}
}

// newContext builds the context of command name invoked with args.
func newContext(app *cli.App, args []string, name string) *cli.Context {
	set := flag.NewFlagSet(name, flag.ContinueOnError)
	_ = set.Parse(args)
	ctx := cli.NewContext(app, set, nil)
	ctx.Command = cli.Command{Name: name}
	return ctx
}

func testApp() *cli.App {
	app := cli.NewApp()
	app.Name = "metronom"
	app.HelpName = "metronom"
	return app
}
