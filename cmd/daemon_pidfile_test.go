package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/energylab/metronom/pkg/metrolib"
)

func TestPidFile_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	if err := metrolib.SetConfigDir(dir); err != nil {
		t.Fatalf("SetConfigDir: %v", err)
	}
	if got := getPidFilePath(); got != filepath.Join(dir, pidFileName) {
		t.Fatalf("path = %s", got)
	}

	if _, err := ReadPidFile(); !os.IsNotExist(err) {
		t.Fatalf("ReadPidFile before write = %v", err)
	}
	if err := WritePidFile(); err != nil {
		t.Fatalf("WritePidFile: %v", err)
	}
	pid, err := ReadPidFile()
	if err != nil || pid != os.Getpid() {
		t.Fatalf("ReadPidFile = %d, %v", pid, err)
	}
	if !isProcessRunning(pid) {
		t.Fatal("own process reported as not running")
	}
	if err := RemovePidFile(); err != nil {
		t.Fatalf("RemovePidFile: %v", err)
	}
	if err := RemovePidFile(); err != nil {
		t.Fatalf("second RemovePidFile: %v", err)
	}
}

func TestReadPidFile_Invalid(t *testing.T) {
	if err := metrolib.SetConfigDir(t.TempDir()); err != nil {
		t.Fatalf("SetConfigDir: %v", err)
	}
	for _, content := range []string{"abc", "0", "-5", ""} {
		if err := os.WriteFile(getPidFilePath(), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := ReadPidFile(); err == nil {
			t.Errorf("ReadPidFile(%q) succeeded", content)
		}
	}
}

func TestCheckPidFile(t *testing.T) {
	if err := metrolib.SetConfigDir(t.TempDir()); err != nil {
		t.Fatalf("SetConfigDir: %v", err)
	}
	if err := checkPidFile(); err != nil {
		t.Fatalf("no pid file: %v", err)
	}
	if err := os.WriteFile(getPidFilePath(), []byte("999999999"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := checkPidFile(); err != nil {
		t.Fatalf("stale pid file: %v", err)
	}
	if err := WritePidFile(); err != nil {
		t.Fatal(err)
	}
	if err := checkPidFile(); !errors.Is(err, errDaemonRunning) {
		t.Fatalf("live pid file = %v", err)
	}
}
