// Package daemon assembles the metronom daemon: the durable wake store,
// the run API, the control server and the metrics they share.
package daemon

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/energylab/metronom/internal/api"
	"github.com/energylab/metronom/internal/config"
	"github.com/energylab/metronom/internal/metrics"
	"github.com/energylab/metronom/internal/runner"
	"github.com/energylab/metronom/internal/scenarios"
	"github.com/energylab/metronom/internal/scheduler"
	"github.com/energylab/metronom/internal/server"
	"github.com/energylab/metronom/internal/signaller"
	"github.com/energylab/metronom/pkg/credman"
	"github.com/energylab/metronom/pkg/credman/keyring"
	"github.com/energylab/metronom/pkg/logger"
	"github.com/energylab/metronom/pkg/metrolib"
	"github.com/energylab/metronom/pkg/operations"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

var (
	ErrAlreadyRunning  = errors.New("daemon is already running")
	ErrNotRunning      = errors.New("daemon is not running")
	ErrShutdownTimeout = errors.New("shutdown timed out")
)

// SecretsFileName is the encrypted secret store in the config directory.
const SecretsFileName = "secrets.bin"

// RPCSecretName is the secret holding the HTTP JSON-RPC bearer token.
const RPCSecretName = "rpc"

type Config struct {
	App *config.Config
	// ConfigDir holds the wake database, secrets and known_hosts.
	// Defaults to metrolib.ConfigDir.
	ConfigDir string
	// ScenariosDir and LogsDir default to the metrolib paths.
	ScenariosDir string
	LogsDir      string

	Version   string
	Commit    string
	BuildType string

	// ShutdownTimeout bounds Shutdown. Zero waits forever.
	ShutdownTimeout time.Duration
}

// Dependencies holds what the runner does not build itself.
type Dependencies struct {
	Log logger.Logger
	// Fs stores scenarios and execution logs. Defaults to the OS.
	Fs afero.Fs
	// Secrets resolves operation secrets and the RPC token. Defaults to
	// the encrypted store opened by OpenSecrets.
	Secrets operations.SecretSource
	// ShutdownFunc runs first during Shutdown.
	ShutdownFunc func() error
}

// Runner manages the daemon lifecycle.
type Runner struct {
	config  *Config
	deps    *Dependencies
	running bool
	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(cfg *Config, deps *Dependencies) *Runner {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.App == nil {
		cfg.App = config.Default()
	}
	if cfg.ConfigDir == "" {
		cfg.ConfigDir = metrolib.ConfigDir
	}
	if cfg.ScenariosDir == "" {
		cfg.ScenariosDir = metrolib.ScenariosDir
	}
	if cfg.LogsDir == "" {
		cfg.LogsDir = metrolib.LogsDir
	}
	if deps == nil {
		deps = &Dependencies{}
	}
	if deps.Log == nil {
		deps.Log = logger.NewNopLogger()
	}
	if deps.Fs == nil {
		deps.Fs = afero.NewOsFs()
	}
	return &Runner{config: cfg, deps: deps}
}

func (r *Runner) Config() *Config {
	return r.config
}

// OpenSecrets opens the encrypted secret store of configDir. Its key
// lives in the OS keyring or, when none is available, in a key file.
func OpenSecrets(configDir string) (*credman.SecretManager, error) {
	key, err := keyring.LoadOrCreate(keyring.NewKeyring(), keyring.NewFileKeyStore(configDir))
	if err != nil {
		return nil, err
	}
	return credman.NewSecretManager(filepath.Join(configDir, SecretsFileName), key)
}

// Start builds every component and serves until ctx is cancelled or
// Shutdown is called. Pending wake requests of earlier daemons resume.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	done := r.done
	r.running = true
	r.mu.Unlock()

	defer func() {
		cancel()
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		close(done)
	}()
	return r.serve(ctx)
}

func (r *Runner) serve(ctx context.Context) error {
	cfg, app, log := r.config, r.config.App, r.deps.Log

	secrets := r.deps.Secrets
	if secrets == nil {
		sm, err := OpenSecrets(cfg.ConfigDir)
		if err != nil {
			log.Warning("daemon: secret store unavailable: %v", err)
		} else {
			secrets = sm
		}
	}
	rpcSecret := ""
	if secrets != nil {
		rpcSecret, _ = secrets.Get(RPCSecretName)
	}
	if rpcSecret == "" {
		log.Info("daemon: no %q secret, HTTP JSON-RPC disabled", RPCSecretName)
	}

	store, err := scheduler.OpenSQLiteStore(filepath.Join(cfg.ConfigDir, "metronom.db"))
	if err != nil {
		return err
	}
	defer store.Close()
	defer operations.CloseKeepAlive()

	m := metrics.New()
	var sounder signaller.Sounder = signaller.LogSounder{Log: log, Bell: app.Sound.Bell}
	if app.Sound.Command != "" {
		cs, err := signaller.NewCommandSounder(app.Sound.Command, log)
		if err != nil {
			log.Warning("daemon: %v, logging cues instead", err)
		} else {
			sounder = cs
		}
	}

	opDeps := app.OperationDeps()
	opDeps.Secrets = secrets
	opDeps.Log = log
	opDeps.KnownHostsPath = filepath.Join(cfg.ConfigDir, "known_hosts")
	if opDeps.ScriptDir == "" {
		opDeps.ScriptDir = cfg.ScenariosDir
	}

	continuous, resumable := app.Policies()
	notifier := server.NewRPCNotifier(log)
	a, err := api.New(ctx, api.Config{
		Timing:           app.RunnerTiming(),
		ContinuousPolicy: continuous,
		ResumablePolicy:  resumable,
		Version:          cfg.Version,
		Commit:           cfg.Commit,
		BuildType:        cfg.BuildType,
	}, api.Deps{
		Env: runner.Env{
			Fs:      r.deps.Fs,
			LogDir:  cfg.LogsDir,
			Log:     log,
			Sounder: sounder,
			Metrics: m,
		},
		Registry:  operations.NewRegistry(opDeps),
		Scenarios: scenarios.NewStore(r.deps.Fs, cfg.ScenariosDir),
		Store:     store,
		Publisher: notifier,
	})
	if err != nil {
		return err
	}
	defer a.Close()

	srv := server.NewServer(log, a, notifier, server.Config{
		TCPPort:   app.Daemon.TCPPort,
		Secret:    rpcSecret,
		ListenAll: app.Daemon.ListenAll,
		Metrics:   m.Handler(),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(gctx) })
	log.Info("daemon: started %s", cfg.Version)
	err = g.Wait()
	log.Info("daemon: stopping")
	return err
}

// Shutdown stops a running daemon and waits for Start to return.
func (r *Runner) Shutdown() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return ErrNotRunning
	}
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	if r.deps.ShutdownFunc != nil {
		if err := r.withTimeout(r.deps.ShutdownFunc); err != nil {
			cancel()
			return err
		}
	}
	cancel()
	return r.withTimeout(func() error {
		<-done
		return nil
	})
}

func (r *Runner) withTimeout(fn func() error) error {
	if r.config.ShutdownTimeout <= 0 {
		return fn()
	}
	errc := make(chan error, 1)
	go func() { errc <- fn() }()
	select {
	case err := <-errc:
		return err
	case <-time.After(r.config.ShutdownTimeout):
		return ErrShutdownTimeout
	}
}

func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}
