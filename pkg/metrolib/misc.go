package metrolib

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// ConfigDirEnv overrides the default configuration directory.
const ConfigDirEnv = "METRONOM_CONFIG_DIR"

// ScenarioSuffix is stripped from scenario file names to build log file names.
const ScenarioSuffix = ".scenario"

var (
	// ConfigDir is the absolute path to the metronom configuration directory.
	ConfigDir string
	// ScenariosDir holds the scenario files known to the daemon.
	ScenariosDir string
	// LogsDir receives execution logs and traces.
	LogsDir string
	// DatabasePath is the sqlite file backing durable wake requests.
	DatabasePath string
)

func init() {
	dir := os.Getenv(ConfigDirEnv)
	if dir == "" {
		dir = defaultConfigDir()
	}
	if err := setConfigDir(dir); err != nil {
		panic(err)
	}
}

func defaultConfigDir() string {
	cdr, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "metronom")
	}
	return filepath.Join(cdr, "metronom")
}

func setConfigDir(dir string) error {
	if dir == "" {
		return errors.New("config dir is empty")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	for _, d := range []string{abs, filepath.Join(abs, "scenarios"), filepath.Join(abs, "logs")} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return err
		}
	}
	ConfigDir = abs
	ScenariosDir = filepath.Join(abs, "scenarios")
	LogsDir = filepath.Join(abs, "logs")
	DatabasePath = filepath.Join(abs, "metronom.db")
	return nil
}

// SetConfigDir points all metronom paths at dir, creating it when needed.
func SetConfigDir(dir string) error {
	return setConfigDir(dir)
}

// ScenarioBase returns the file name of a scenario without directories
// and without the .scenario suffix.
func ScenarioBase(name string) string {
	base := name
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	return strings.TrimSuffix(base, ScenarioSuffix)
}
