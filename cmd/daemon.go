package cmd

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/energylab/metronom/cmd/common"
	"github.com/energylab/metronom/internal/config"
	daemonpkg "github.com/energylab/metronom/internal/daemon"
	"github.com/energylab/metronom/pkg/logger"
	"github.com/energylab/metronom/pkg/metrolib"
	"github.com/urfave/cli"
)

const daemonShutdownTimeout = 30 * time.Second

var configPath string

var daemonFlags = []cli.Flag{
	cli.StringFlag{
		Name:        "config, c",
		Usage:       "configuration file (default: <config dir>/config.yaml)",
		Destination: &configPath,
	},
}

var errDaemonRunning = errors.New("daemon is already running")

// loadAppConfig reads the configuration named by --config or the default
// file of the config directory.
func loadAppConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.Path()
	}
	return config.Load(path)
}

// newDaemonLogger logs to the console and to the JSON log file of the
// configuration. The file is skipped with a warning when it cannot be
// opened.
func newDaemonLogger(app *config.Config, console logger.Logger) logger.Logger {
	path := app.Daemon.LogFile
	if path == "" {
		path = filepath.Join(metrolib.ConfigDir, "metronom.log")
	}
	zl, err := logger.NewFileZapLogger(path, app.Daemon.Debug)
	if err != nil {
		console.Warning("daemon: log file %s: %v", path, err)
		return console
	}
	return logger.NewMultiLogger(console, zl)
}

func newDaemonRunner(app *config.Config, l logger.Logger) *daemonpkg.Runner {
	return daemonpkg.New(&daemonpkg.Config{
		App:             app,
		Version:         currentBuildArgs.Version,
		Commit:          currentBuildArgs.Commit,
		BuildType:       currentBuildArgs.BuildType,
		ShutdownTimeout: daemonShutdownTimeout,
	}, &daemonpkg.Dependencies{Log: l})
}

// checkPidFile fails when another daemon owns the pid file. A stale file
// is replaced.
func checkPidFile() error {
	pid, err := ReadPidFile()
	if err != nil {
		return nil
	}
	if pid != 0 && isProcessRunning(pid) {
		return fmt.Errorf("%w (PID %d)", errDaemonRunning, pid)
	}
	return nil
}

func daemon(ctx *cli.Context) error {
	app, err := loadAppConfig()
	if err != nil {
		common.PrintRuntimeErr(ctx, "daemon", "load_config", err)
		return nil
	}
	if err := checkPidFile(); err != nil {
		common.PrintRuntimeErr(ctx, "daemon", "pid_file", err)
		return nil
	}
	if err := WritePidFile(); err != nil {
		common.PrintRuntimeErr(ctx, "daemon", "pid_file", err)
		return nil
	}
	defer RemovePidFile()

	l := newDaemonLogger(app, logger.NewStandardLogger(log.Default()))
	defer l.Close()

	sctx, cancel := setupShutdownHandler()
	defer cancel()
	return newDaemonRunner(app, l).Start(sctx)
}
