package app

import (
	"context"
	"fmt"
	"io"

	"github.com/bnema/zerowrap"
	"go.uber.org/multierr"

	"github.com/bnema/sandboxer/internal/adapters/out/audit"
	"github.com/bnema/sandboxer/internal/adapters/out/docker"
	"github.com/bnema/sandboxer/internal/adapters/out/envloader"
	"github.com/bnema/sandboxer/internal/adapters/out/eventbus"
	"github.com/bnema/sandboxer/internal/adapters/out/filelock"
	"github.com/bnema/sandboxer/internal/adapters/out/httpprober"
	"github.com/bnema/sandboxer/internal/adapters/out/manifest"
	"github.com/bnema/sandboxer/internal/adapters/out/portcheck"
	"github.com/bnema/sandboxer/internal/boundaries/in"
	"github.com/bnema/sandboxer/internal/boundaries/out"
	"github.com/bnema/sandboxer/internal/domain"
	"github.com/bnema/sandboxer/internal/usecase/sandbox"
)

// Options are the per-invocation settings coming from the command line.
type Options struct {
	ConfigPath   string
	ManifestPath string
	Service      string
	EnvFiles     []string
	LogLevel     string
	// BuildOutput receives build progress. Nil discards it.
	BuildOutput io.Writer
}

// App holds the wired sandboxer components for one invocation.
type App struct {
	Config  Config
	Log     zerowrap.Logger
	Sandbox in.SandboxService

	opts     Options
	runtime  *docker.Runtime
	manifest out.ManifestLoader
	env      out.EnvLoader
	bus      out.EventBus
	closers  []func() error
}

// New loads configuration and wires every adapter into the sandbox service.
// The engine is not contacted until a command needs it.
func New(ctx context.Context, opts Options) (*App, error) {
	cfg, err := LoadConfig(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSpecValidation, err)
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}

	log, logCleanup, err := initLogger(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Log: log, opts: opts}
	if logCleanup != nil {
		a.closers = append(a.closers, func() error { logCleanup(); return nil })
	}

	if err := a.wire(zerowrap.WithCtx(ctx, log)); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	log := zerowrap.FromCtx(ctx)

	runtime, err := docker.NewRuntime(a.Config.Engine.Host)
	if err != nil {
		return log.WrapErr(err, "failed to create Docker runtime")
	}
	a.runtime = runtime
	a.closers = append(a.closers, runtime.Close)

	locker, err := filelock.NewLocker(locksDir(a.Config))
	if err != nil {
		return log.WrapErr(err, "failed to create lock directory")
	}

	bus := eventbus.NewInMemory(100, log)
	if a.Config.Audit.Enabled {
		handler, err := audit.NewHandler(audit.Config{
			Path:       auditPath(a.Config),
			MaxSize:    a.Config.Audit.MaxSize,
			MaxBackups: a.Config.Audit.MaxBackups,
			MaxAge:     a.Config.Audit.MaxAge,
		})
		if err != nil {
			return log.WrapErr(err, "failed to create audit handler")
		}
		if err := bus.Subscribe(handler); err != nil {
			return err
		}
		a.closers = append(a.closers, handler.Close)
	}
	if err := bus.Start(); err != nil {
		return err
	}
	a.bus = bus
	// Stop runs before the audit handler closes so buffered events are written.
	a.closers = append(a.closers, bus.Stop)

	files := append(append([]string{}, a.Config.Env.Files...), a.opts.EnvFiles...)
	a.env = envloader.NewFileLoader(files, log)
	a.manifest = manifest.NewComposeLoader(a.Config.Project.Name)

	config := sandboxConfig(a.Config)
	config.BuildOutput = a.opts.BuildOutput
	prober := httpprober.New(httpprober.WithTimeout(a.Config.Start.ProbeTimeout))
	a.Sandbox = sandbox.NewService(runtime, portcheck.NewProbe(), locker, bus, config).
		WithReadinessProber(prober)

	log.Debug().
		Str("engine_host", a.Config.Engine.Host).
		Str("data_dir", a.Config.DataDir).
		Bool("audit", a.Config.Audit.Enabled).
		Msg("sandboxer wired")
	return nil
}

// LoadSpec reads the manifest and merges the configured env files over the
// service's environment mapping.
func (a *App) LoadSpec(ctx context.Context) (*domain.ServiceSpec, error) {
	spec, err := a.manifest.Load(ctx, a.opts.ManifestPath, a.opts.Service)
	if err != nil {
		return nil, err
	}

	extra, err := a.env.LoadEnv(ctx)
	if err != nil {
		return nil, err
	}
	spec.Environment = envloader.Merge(spec.Environment, extra)
	return spec, nil
}

// EngineVersion returns the engine's server version.
func (a *App) EngineVersion(ctx context.Context) (string, error) {
	return a.runtime.Version(ctx)
}

// Close releases every resource in reverse wiring order.
func (a *App) Close() error {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i]())
	}
	a.closers = nil
	return err
}

// initLogger initializes the zerowrap logger.
func initLogger(cfg Config) (zerowrap.Logger, func(), error) {
	logConfig := zerowrap.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}

	if cfg.Logging.File.Enabled {
		log, cleanup, err := zerowrap.NewWithFile(logConfig, zerowrap.FileConfig{
			Enabled:    true,
			Path:       logFilePath(cfg),
			MaxSize:    cfg.Logging.File.MaxSize,
			MaxBackups: cfg.Logging.File.MaxBackups,
			MaxAge:     cfg.Logging.File.MaxAge,
			Compress:   true,
		})
		if err != nil {
			return zerowrap.Default(), nil, fmt.Errorf("failed to create logger with file: %w", err)
		}
		return log, cleanup, nil
	}

	return zerowrap.New(logConfig), nil, nil
}
