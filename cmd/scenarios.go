package cmd

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/energylab/metronom/cmd/common"
	"github.com/energylab/metronom/pkg/logger"
	"github.com/spf13/afero"
	"github.com/urfave/cli"
)

func listScenarios(ctx *cli.Context) error {
	if ctx.Args().First() == "help" {
		return cli.ShowCommandHelp(ctx, ctx.Command.Name)
	}
	client, err := newClient()
	if err != nil {
		common.PrintRuntimeErr(ctx, "scenarios", "new_client", err)
		return nil
	}
	defer client.Close()
	list, err := client.ListScenarios()
	if err != nil {
		common.PrintRuntimeErr(ctx, "scenarios", "list", err)
		return nil
	}
	if len(list) == 0 {
		fmt.Println("metronom: no scenarios found")
		return nil
	}
	for _, s := range list {
		if s.Error != "" {
			fmt.Printf("%-24s invalid: %s\n", s.Name, s.Error)
			continue
		}
		fmt.Printf("%-24s %d operations\n", s.Name, s.Operations)
	}
	return nil
}

// addScenario validates a scenario file and copies it into the store.
func addScenario(ctx *cli.Context) error {
	path := ctx.Args().First()
	if path == "" {
		return common.PrintErrWithCmdHelp(ctx, errors.New("no scenario file provided"))
	}
	b, err := afero.ReadFile(cmdFs, path)
	if err != nil {
		common.PrintRuntimeErr(ctx, "scenarios", "read_file", err)
		return nil
	}
	app, err := loadAppConfig()
	if err != nil {
		common.PrintRuntimeErr(ctx, "scenarios", "load_config", err)
		return nil
	}
	if _, err := newLocalParser(app, logger.NewNopLogger(), filepath.Dir(path)).ExpandLines(string(b)); err != nil {
		common.PrintRuntimeErr(ctx, "scenarios", "parse", err)
		return nil
	}
	name, err := scenarioStore().Write(path, string(b))
	if err != nil {
		common.PrintRuntimeErr(ctx, "scenarios", "write", err)
		return nil
	}
	fmt.Printf("Scenario %s added.\n", name)
	return nil
}

func removeScenario(ctx *cli.Context) error {
	name := ctx.Args().First()
	if name == "" {
		return common.PrintErrWithCmdHelp(ctx, errors.New("no scenario provided"))
	}
	if err := scenarioStore().Delete(name); err != nil {
		common.PrintRuntimeErr(ctx, "scenarios", "remove", err)
		return nil
	}
	fmt.Printf("Scenario %s removed.\n", name)
	return nil
}
