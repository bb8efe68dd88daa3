package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/energylab/metronom/pkg/metrolib"
)

const pidFileName = "daemon.pid"

func getPidFilePath() string {
	return filepath.Join(metrolib.ConfigDir, pidFileName)
}

// WritePidFile records the current process as the daemon.
func WritePidFile() error {
	return os.WriteFile(getPidFilePath(), []byte(strconv.Itoa(os.Getpid())), 0644)
}

// ReadPidFile returns the recorded daemon PID.
func ReadPidFile() (int, error) {
	data, err := os.ReadFile(getPidFilePath())
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in file: %w", err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("invalid PID: %d", pid)
	}
	return pid, nil
}

// RemovePidFile deletes the pid file. A missing file is not an error.
func RemovePidFile() error {
	err := os.Remove(getPidFilePath())
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
