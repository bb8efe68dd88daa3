//go:build !windows

package cmd

import "github.com/urfave/cli"

func getDaemonAction() cli.ActionFunc {
	return daemon
}

// getPlatformCommands has nothing to add outside Windows.
func getPlatformCommands() []cli.Command { return nil }
