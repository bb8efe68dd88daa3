package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	cmdcommon "github.com/energylab/metronom/cmd/common"
	"github.com/energylab/metronom/common"
	"github.com/energylab/metronom/pkg/metrocli"
	"github.com/urfave/cli"
)

var (
	runMode      string
	startAt      string
	startIn      string
	startCron    string
	useSignaller bool
	followRun    bool

	startFlags = append([]cli.Flag{
		cli.StringFlag{
			Name:        "mode, m",
			Usage:       "coordinator of the run, continuous or resumable",
			Value:       common.ModeResumable,
			Destination: &runMode,
		},
		cli.StringFlag{
			Name:        "start-at",
			Usage:       "start at a local time (YYYY-MM-DD HH:MM)",
			Destination: &startAt,
		},
		cli.StringFlag{
			Name:        "start-in",
			Usage:       "start after a duration such as 30m or 2h",
			Destination: &startIn,
		},
		cli.StringFlag{
			Name:        "cron",
			Usage:       "start at the next occurrence of a 5-field cron expression",
			Destination: &startCron,
		},
		cli.BoolFlag{
			Name:        "usb, u",
			Usage:       "run the signaller handshake before a continuous run",
			Destination: &useSignaller,
		},
		cli.BoolFlag{
			Name:        "follow, f",
			Usage:       "show the progress of the run until it finishes",
			Destination: &followRun,
		},
	}, clientFlags...)
)

func start(ctx *cli.Context) error {
	scenario := ctx.Args().First()
	if scenario == "" {
		return cmdcommon.PrintErrWithCmdHelp(ctx, errors.New("no scenario provided"))
	} else if scenario == "help" {
		return cli.ShowCommandHelp(ctx, ctx.Command.Name)
	}
	if runMode != common.ModeContinuous && runMode != common.ModeResumable {
		return cmdcommon.PrintErrWithCmdHelp(ctx, fmt.Errorf("unknown mode %q", runMode))
	}

	params := common.StartRunParams{Scenario: scenario, Mode: runMode, UseSignaller: useSignaller}
	warning, err := applySchedule(&params, startAt, startIn, startCron, time.Now())
	if err != nil {
		return cmdcommon.PrintErrWithCmdHelp(ctx, err)
	}
	if warning != "" {
		fmt.Fprintln(os.Stderr, warning)
	}

	var f *follower
	var opts []metrocli.Option
	delayed := params.StartAt != 0 || params.Cron != ""
	if followRun && !delayed {
		f = newFollower(os.Stdout)
		opts = append(opts, metrocli.WithStatusHandler(f.OnStatus))
	}
	client, err := newClient(opts...)
	if err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "start", "new_client", err)
		return nil
	}
	defer client.Close()

	res, err := client.StartRun(params)
	if err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "start", "start_run", err)
		return nil
	}
	if res.StartAt != 0 {
		fmt.Printf("Run %s of %s scheduled for %s.\n", res.RunID, scenario,
			time.UnixMilli(res.StartAt).Format(time.RFC3339))
		return nil
	}
	fmt.Printf("Run %s of %s started.\n", res.RunID, scenario)
	if f == nil {
		return nil
	}

	f.watch(res.RunID)
	if s, err := client.Status(res.RunID); err == nil {
		f.OnStatus(*s)
	}
	sctx, cancel := setupShutdownHandler()
	defer cancel()
	select {
	case <-f.endedC():
	case <-sctx.Done():
	}
	printOutcome(os.Stdout, f.wait())
	return nil
}
