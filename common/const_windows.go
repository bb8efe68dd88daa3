//go:build windows

package common

import (
	"os"
	"strings"
)

const (
	// DefaultPipeName names the control pipe of the daemon.
	DefaultPipeName = "metronom"
	pipePrefix      = `\\.\pipe\`
)

// DefaultPipePath is the pipe of a daemon without METRONOM_PIPE_NAME.
func DefaultPipePath() string {
	return pipePrefix + DefaultPipeName
}

// PipePath resolves METRONOM_PIPE_NAME, which may be a bare name or a
// full \\.\pipe\ path.
func PipePath() string {
	name := os.Getenv(PipeNameEnv)
	switch {
	case name == "":
		return DefaultPipePath()
	case strings.HasPrefix(name, pipePrefix):
		return name
	default:
		return pipePrefix + name
	}
}
