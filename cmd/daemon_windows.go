//go:build windows

package cmd

import (
	"log"

	"github.com/energylab/metronom/internal/service"
	"github.com/energylab/metronom/pkg/logger"
	"github.com/urfave/cli"
	"golang.org/x/sys/windows/svc"
)

func getDaemonAction() cli.ActionFunc {
	return daemonWindows
}

// daemonWindows runs under the Service Control Manager when started as a
// service and as a console daemon otherwise.
func daemonWindows(ctx *cli.Context) error {
	isService, err := svc.IsWindowsService()
	if err != nil {
		return err
	}
	if !isService {
		return daemon(ctx)
	}
	return runAsWindowsService()
}

// runAsWindowsService logs to the console, the Event Log when available
// and the JSON log file.
func runAsWindowsService() error {
	var console logger.Logger = logger.NewStandardLogger(log.Default())
	if ev, err := logger.NewEventLogger(service.DefaultServiceName); err == nil {
		console = logger.NewMultiLogger(console, ev)
	}
	app, err := loadAppConfig()
	if err != nil {
		console.Error("service: load config: %v", err)
		console.Close()
		return err
	}
	l := newDaemonLogger(app, console)
	defer l.Close()

	handler := service.NewWindowsHandler(newDaemonRunner(app, l), l)
	return svc.Run(service.DefaultServiceName, handler)
}

func getPlatformCommands() []cli.Command {
	return []cli.Command{serviceCommand()}
}
