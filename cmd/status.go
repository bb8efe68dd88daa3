package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/energylab/metronom/cmd/common"
	metrocommon "github.com/energylab/metronom/common"
	"github.com/energylab/metronom/pkg/metrolib"
	"github.com/urfave/cli"
)

func status(ctx *cli.Context) error {
	id := ctx.Args().First()
	if id == "help" {
		return cli.ShowCommandHelp(ctx, ctx.Command.Name)
	}
	client, err := newClient()
	if err != nil {
		common.PrintRuntimeErr(ctx, "status", "new_client", err)
		return nil
	}
	defer client.Close()

	if id != "" {
		s, err := client.Status(id)
		if err != nil {
			common.PrintRuntimeErr(ctx, "status", "get_status", err)
			return nil
		}
		fmt.Print(describeRun(*s))
		return nil
	}
	runs, err := client.ListRuns()
	if err != nil {
		common.PrintRuntimeErr(ctx, "status", "list_runs", err)
		return nil
	}
	fmt.Print(runTable(runs))
	return nil
}

// runState names the most significant flag of s.
func runState(s metrolib.RunStatus) string {
	switch {
	case s.Failed:
		return "failed"
	case s.Finished:
		return "finished"
	case s.Syncing:
		return "syncing"
	case s.Running:
		return "running"
	case strings.HasPrefix(s.LastMessage, "scheduled"):
		return "scheduled"
	default:
		return "stopped"
	}
}

func runTable(runs []metrolib.RunStatus) string {
	if len(runs) == 0 {
		return "metronom: no runs found\n"
	}
	var b strings.Builder
	b.WriteString("------------------------------------------------------------------------------\n")
	b.WriteString("|                Run ID                |       Scenario       | Mode |  State  | Steps |\n")
	b.WriteString("|--------------------------------------|----------------------|------|---------|-------|\n")
	for _, s := range runs {
		mode := "res"
		if s.Mode == metrocommon.ModeContinuous {
			mode = "cont"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
			common.Fit(s.RunID, 36),
			common.Fit(s.Scenario, 20),
			common.Beaut(mode, 4),
			common.Beaut(runState(s), 7),
			common.Beaut(fmt.Sprintf("%d/%d", s.Completed, s.Total), 5),
		)
	}
	b.WriteString("------------------------------------------------------------------------------\n")
	return b.String()
}

func describeRun(s metrolib.RunStatus) string {
	return fmt.Sprintf(`
Run`+"\t\t"+`: %s
Scenario`+"\t"+`: %s
Mode`+"\t\t"+`: %s
State`+"\t\t"+`: %s
Operations`+"\t"+`: %d/%d
Message`+"\t\t"+`: %s

`, s.RunID, s.Scenario, s.Mode, runState(s), s.Completed, s.Total, s.LastMessage)
}

func printOutcome(w io.Writer, s metrolib.RunStatus) {
	switch {
	case s.Failed:
		fmt.Fprintf(w, "Run failed: %s\n", s.LastMessage)
	case s.OperationsFinished:
		fmt.Fprintf(w, "Completed %d/%d operations.\n", s.Completed, s.Total)
	default:
		fmt.Fprintf(w, "Run ended after %d/%d operations.\n", s.Completed, s.Total)
	}
}
