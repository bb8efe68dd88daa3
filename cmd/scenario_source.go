package cmd

import (
	"path/filepath"

	"github.com/energylab/metronom/internal/config"
	"github.com/energylab/metronom/internal/scenarios"
	"github.com/energylab/metronom/pkg/logger"
	"github.com/energylab/metronom/pkg/metrolib"
	"github.com/energylab/metronom/pkg/operations"
	"github.com/spf13/afero"
)

// cmdFs holds scenario files and execution logs of local commands.
var cmdFs afero.Fs = afero.NewOsFs()

func scenarioStore() *scenarios.Store {
	return scenarios.NewStore(cmdFs, metrolib.ScenariosDir)
}

// readScenario loads ref from a file path when one exists, else from the
// scenario store. It returns the scenario name and text.
func readScenario(ref string) (name, text string, err error) {
	name, err = scenarios.Name(ref)
	if err != nil {
		return "", "", err
	}
	if ok, _ := afero.Exists(cmdFs, ref); ok {
		b, err := afero.ReadFile(cmdFs, ref)
		if err != nil {
			return "", "", err
		}
		return name, string(b), nil
	}
	text, err = scenarioStore().Read(ref)
	return name, text, err
}

// newLocalParser builds the operation registry of app for in-process use.
// Secrets come from the encrypted store when it can be opened. Relative
// script files resolve against scriptDir unless app sets one.
func newLocalParser(app *config.Config, l logger.Logger, scriptDir string) *metrolib.Parser {
	deps := app.OperationDeps()
	deps.Log = l
	deps.KnownHostsPath = filepath.Join(metrolib.ConfigDir, "known_hosts")
	if deps.ScriptDir == "" {
		deps.ScriptDir = scriptDir
	}
	if sm, err := openSecrets(); err == nil {
		deps.Secrets = sm
	} else {
		l.Warning("secret store unavailable: %v", err)
	}
	return metrolib.NewParser(operations.NewRegistry(deps))
}
