package cmd

import (
	"os"

	"github.com/energylab/metronom/pkg/metrocli"
	"github.com/urfave/cli"
)

var daemonURI string

var clientFlags = []cli.Flag{
	cli.StringFlag{
		Name:        "daemon-uri",
		Usage:       "daemon to connect to (unix:///path/to.sock, tcp://host:port or pipe://name)",
		Destination: &daemonURI,
		EnvVar:      metrocli.DaemonURIEnv,
	},
}

// newClient connects to the daemon named by --daemon-uri, or to the local
// daemon which is spawned when not running. Replaced in tests.
var newClient = func(opts ...metrocli.Option) (*metrocli.Client, error) {
	if daemonURI != "" {
		opts = append(opts, metrocli.WithURI(daemonURI))
	} else {
		opts = append(opts, metrocli.WithAutoStart())
	}
	c, err := metrocli.NewClient(opts...)
	if err != nil {
		return nil, err
	}
	c.CheckVersionMismatch(os.Stderr, currentBuildArgs.Version)
	return c, nil
}
