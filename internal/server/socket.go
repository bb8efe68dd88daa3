package server

import (
	"os"
	"path/filepath"

	"github.com/energylab/metronom/common"
)

func socketPath() string {
	if path := os.Getenv(common.SocketPathEnv); path != "" {
		return path
	}
	return filepath.Join(os.TempDir(), "metronom.sock")
}

func forceTCP() bool {
	v := os.Getenv(common.ForceTCPEnv)
	return v == "1" || v == "true"
}
