package cmd

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/energylab/metronom/cmd/common"
	"github.com/energylab/metronom/pkg/logger"
	"github.com/energylab/metronom/pkg/metrolib"
	"github.com/urfave/cli"
)

func validate(ctx *cli.Context) error {
	ref := ctx.Args().First()
	if ref == "" {
		return common.PrintErrWithCmdHelp(ctx, errors.New("no scenario provided"))
	} else if ref == "help" {
		return cli.ShowCommandHelp(ctx, ctx.Command.Name)
	}
	app, err := loadAppConfig()
	if err != nil {
		common.PrintRuntimeErr(ctx, "validate", "load_config", err)
		return nil
	}
	name, text, err := readScenario(ref)
	if err != nil {
		common.PrintRuntimeErr(ctx, "validate", "read_scenario", err)
		return nil
	}
	lines, err := newLocalParser(app, logger.NewNopLogger(), filepath.Dir(ref)).ExpandLines(text)
	if err == nil && len(lines) == 0 {
		err = metrolib.ErrEmptyScenario
	}
	if err != nil {
		common.PrintRuntimeErr(ctx, "validate", "parse", err)
		return nil
	}
	fmt.Printf("%s: %d operations\n", name, len(lines))
	for i, l := range lines {
		fmt.Printf("%4d  %s\n", i+1, l)
	}
	return nil
}
