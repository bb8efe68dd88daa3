package cmd

import (
	"errors"
	"fmt"

	"github.com/energylab/metronom/cmd/common"
	"github.com/urfave/cli"
)

func stop(ctx *cli.Context) error {
	id := ctx.Args().First()
	if id == "" {
		return common.PrintErrWithCmdHelp(ctx, errors.New("no run id provided"))
	} else if id == "help" {
		return cli.ShowCommandHelp(ctx, ctx.Command.Name)
	}
	client, err := newClient()
	if err != nil {
		common.PrintRuntimeErr(ctx, "stop", "new_client", err)
		return nil
	}
	defer client.Close()
	if err := client.StopRun(id); err != nil {
		common.PrintRuntimeErr(ctx, "stop", "stop_run", err)
		return nil
	}
	fmt.Printf("Run %s stopped.\n", id)
	return nil
}
