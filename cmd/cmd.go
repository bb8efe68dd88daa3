// Package cmd implements the metronom command line.
package cmd

import (
	"fmt"
	"runtime"

	"github.com/energylab/metronom/cmd/common"
	"github.com/urfave/cli"
)

type BuildArgs struct {
	Version   string
	BuildType string
	Date      string
	Commit    string
}

var currentBuildArgs BuildArgs

func Execute(args []string, bArgs BuildArgs) error {
	currentBuildArgs = bArgs
	app := cli.App{
		Name:                  "metronom",
		HelpName:              "metronom",
		Usage:                 "Schedules energy-measurement scenarios.",
		Version:               fmt.Sprintf("%s-%s", bArgs.Version, bArgs.BuildType),
		UsageText:             "metronom <command> [arguments...]",
		Description:           DESCRIPTION,
		CustomAppHelpTemplate: appHelpTemplate,
		OnUsageError:          common.UsageErrorCallback,
		Commands: append([]cli.Command{
			{
				Name:   "daemon",
				Usage:  "runs the metronom daemon",
				Action: getDaemonAction(),
				Flags:  daemonFlags,
			},
			{
				Name:                   "run",
				Aliases:                []string{"r"},
				Usage:                  "runs a scenario in the foreground",
				Description:            RunDescription,
				OnUsageError:           common.UsageErrorCallback,
				CustomHelpTemplate:     CMD_appHelpTemplate,
				Action:                 run,
				Flags:                  runFlags,
				UseShortOptionHandling: true,
			},
			{
				Name:                   "start",
				Aliases:                []string{"s"},
				Usage:                  "starts a scenario on the daemon",
				Description:            StartDescription,
				OnUsageError:           common.UsageErrorCallback,
				CustomHelpTemplate:     CMD_appHelpTemplate,
				Action:                 start,
				Flags:                  startFlags,
				UseShortOptionHandling: true,
			},
			{
				Name:               "stop",
				Usage:              "stops a run",
				Description:        StopDescription,
				OnUsageError:       common.UsageErrorCallback,
				CustomHelpTemplate: CMD_appHelpTemplate,
				Action:             stop,
				Flags:              clientFlags,
			},
			{
				Name:               "status",
				Aliases:            []string{"st"},
				Usage:              "shows the runs of the daemon",
				Description:        StatusDescription,
				OnUsageError:       common.UsageErrorCallback,
				CustomHelpTemplate: CMD_appHelpTemplate,
				Action:             status,
				Flags:              clientFlags,
			},
			{
				Name:               "validate",
				Aliases:            []string{"v"},
				Usage:              "checks a scenario file",
				Description:        ValidateDescription,
				OnUsageError:       common.UsageErrorCallback,
				CustomHelpTemplate: CMD_appHelpTemplate,
				Action:             validate,
			},
			{
				Name:               "scenarios",
				Aliases:            []string{"ls"},
				Usage:              "lists and manages stored scenarios",
				Description:        ScenariosDescription,
				OnUsageError:       common.UsageErrorCallback,
				CustomHelpTemplate: CMD_appHelpTemplate,
				Action:             listScenarios,
				Flags:              clientFlags,
				Subcommands: []cli.Command{
					{
						Name:   "add",
						Usage:  "copies a scenario file into the scenarios directory",
						Action: addScenario,
					},
					{
						Name:   "remove",
						Usage:  "deletes a stored scenario",
						Action: removeScenario,
					},
				},
			},
			{
				Name:               "secret",
				Usage:              "manages stored secrets",
				Description:        SecretDescription,
				CustomHelpTemplate: CMD_appHelpTemplate,
				Subcommands: []cli.Command{
					{
						Name:   "set",
						Usage:  "stores the secret read from standard input",
						Action: setSecret,
					},
					{
						Name:   "delete",
						Usage:  "removes a secret",
						Action: deleteSecret,
					},
					{
						Name:   "list",
						Usage:  "lists secret names",
						Action: listSecrets,
					},
				},
			},
			{
				Name:   "stop-daemon",
				Usage:  "stops the running daemon",
				Action: stopDaemon,
			},
			{
				Name:    "help",
				Aliases: []string{"h"},
				Usage:   "prints the help message",
				Action:  common.Help,
			},
			{
				Name:               "version",
				Usage:              "prints the installed version of metronom",
				UsageText:          " ",
				CustomHelpTemplate: CMD_appHelpTemplate,
				Action:             common.GetVersion,
			},
		}, getPlatformCommands()...),
		Action:      common.Help,
		HideHelp:    true,
		HideVersion: true,
	}
	common.VersionCmdStr = fmt.Sprintf("%s %s (%s_%s)\nBuild: %s=%s\n",
		app.Name,
		app.Version,
		runtime.GOOS,
		runtime.GOARCH,
		bArgs.Date, bArgs.Commit,
	)
	return app.Run(args)
}
