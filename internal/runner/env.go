package runner

import (
	"github.com/energylab/metronom/internal/metrics"
	"github.com/energylab/metronom/internal/signaller"
	"github.com/energylab/metronom/pkg/logger"
	"github.com/energylab/metronom/pkg/metrolib"
	"github.com/spf13/afero"
)

// Env carries the collaborators shared by the coordinators.
type Env struct {
	Clock   metrolib.Clock
	Fs      afero.Fs
	LogDir  string
	Log     logger.Logger
	Sounder signaller.Sounder
	// Metrics may be nil.
	Metrics *metrics.Metrics
}

func (e Env) withDefaults() Env {
	if e.Clock == nil {
		e.Clock = metrolib.SystemClock{}
	}
	if e.Fs == nil {
		e.Fs = afero.NewOsFs()
	}
	if e.LogDir == "" {
		e.LogDir = metrolib.LogsDir
	}
	if e.Log == nil {
		e.Log = logger.NewNopLogger()
	}
	if e.Sounder == nil {
		e.Sounder = signaller.LogSounder{Log: e.Log}
	}
	return e
}
