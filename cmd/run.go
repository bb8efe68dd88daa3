package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	cmdcommon "github.com/energylab/metronom/cmd/common"
	"github.com/energylab/metronom/common"
	"github.com/energylab/metronom/internal/config"
	"github.com/energylab/metronom/internal/runner"
	"github.com/energylab/metronom/internal/signaller"
	"github.com/energylab/metronom/pkg/logger"
	"github.com/energylab/metronom/pkg/metrolib"
	"github.com/energylab/metronom/pkg/operations"
	"github.com/urfave/cli"
)

var runFlags = []cli.Flag{
	cli.BoolFlag{
		Name:        "usb, u",
		Usage:       "run the signaller handshake and synchronization edges first",
		Destination: &useSignaller,
	},
	daemonFlags[0],
}

// newSounder plays cues with the configured speech command, or logs them.
func newSounder(app *config.Config, l logger.Logger) signaller.Sounder {
	if app.Sound.Command != "" {
		cs, err := signaller.NewCommandSounder(app.Sound.Command, l)
		if err == nil {
			return cs
		}
		l.Warning("%v, logging cues instead", err)
	}
	return signaller.LogSounder{Log: l, Bell: app.Sound.Bell}
}

func run(ctx *cli.Context) error {
	ref := ctx.Args().First()
	if ref == "" {
		return cmdcommon.PrintErrWithCmdHelp(ctx, errors.New("no scenario provided"))
	} else if ref == "help" {
		return cli.ShowCommandHelp(ctx, ctx.Command.Name)
	}
	app, err := loadAppConfig()
	if err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "run", "load_config", err)
		return nil
	}
	name, text, err := readScenario(ref)
	if err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "run", "read_scenario", err)
		return nil
	}

	// The terminal belongs to the progress bar; logs go to the log file.
	l := newDaemonLogger(app, logger.NewNopLogger())
	defer l.Close()
	defer operations.CloseKeepAlive()

	insts, err := newLocalParser(app, l, filepath.Dir(ref)).Parse(text)
	if err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "run", "parse", err)
		return nil
	}
	if len(insts) == 0 {
		cmdcommon.PrintRuntimeErr(ctx, "run", "parse", metrolib.ErrEmptyScenario)
		return nil
	}

	sctx, cancel := setupShutdownHandler()
	defer cancel()
	err = runForeground(sctx, app, l, name, insts, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, runner.ErrStepFailed) {
		cmdcommon.PrintRuntimeErr(ctx, "run", "execute", err)
	}
	return nil
}

// runForeground executes insts with the continuous coordinator until ctx
// is cancelled, rendering progress on w.
func runForeground(ctx context.Context, app *config.Config, l logger.Logger, name string, insts []metrolib.Instance, w io.Writer) error {
	timing := app.RunnerTiming()
	policy, _ := app.Policies()
	env := runner.Env{
		Fs:      cmdFs,
		LogDir:  metrolib.LogsDir,
		Log:     l,
		Sounder: newSounder(app, l),
	}
	f := newFollower(w)
	ref := metrolib.NewTimeReference(metrolib.SystemClock{})
	cfg := runner.ContinuousConfig{
		Scenario: name,
		Timing:   timing,
		Policy:   policy,
		Ref:      ref,
		Log:      metrolib.NewExecutionLog(name, ref.Start),
		Tracer:   metrolib.NewTracer(name, ref),
		Status: metrolib.NewStatusTracker(metrolib.RunStatus{Scenario: name, Mode: common.ModeContinuous},
			metrolib.StatusFunc(f.OnStatus)),
	}

	if useSignaller {
		sig := signaller.NewSimulatedSignaller(l, timing.SyncEdges)
		defer sig.Close()
		fmt.Fprintln(w, "Waiting for the measurement device...")
		if err := runner.NewPreparation(env, sig, cfg).Run(ctx); err != nil {
			f.wait()
			return err
		}
	}

	fmt.Fprintln(w, "Press Ctrl+C to stop the run.")
	err := runner.NewContinuous(env, cfg).Run(ctx, insts)
	printOutcome(w, f.wait())
	return err
}
