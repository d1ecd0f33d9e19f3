// Package cli implements the CLI adapter for sandboxer.
// This package provides Cobra commands that delegate to the app layer.
package cli

import (
	"context"

	"github.com/bnema/zerowrap"
	"github.com/spf13/cobra"

	"github.com/bnema/sandboxer/internal/app"
	"github.com/bnema/sandboxer/internal/boundaries/in"
	"github.com/bnema/sandboxer/internal/domain"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// rootOptions are the global flags shared by every command.
type rootOptions struct {
	configPath   string
	manifestPath string
	service      string
	envFiles     []string
	logLevel     string
}

// session is what a command needs from the wired application.
type session interface {
	LoadSpec(ctx context.Context) (*domain.ServiceSpec, error)
	EngineVersion(ctx context.Context) (string, error)
	Close() error
}

// openSession wires the application for one command. Tests replace it.
var openSession = func(ctx context.Context, opts app.Options) (session, in.SandboxService, context.Context, error) {
	a, err := app.New(ctx, opts)
	if err != nil {
		return nil, nil, ctx, err
	}
	return a, a.Sandbox, zerowrap.WithCtx(ctx, a.Log), nil
}

// NewRootCmd creates the root command for the sandboxer CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "sandboxer",
		Short: "sandboxer - reconcile a Docker-in-Docker sandbox from a compose file",
		Long: `sandboxer brings one privileged Docker-in-Docker container to the state
declared in a compose file: volumes and networks, image build or pull,
replace-or-reuse of the existing container, start and restart policy.

Running it twice with an unchanged manifest leaves the sandbox untouched.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to sandboxer.toml")
	flags.StringVarP(&opts.manifestPath, "file", "f", "docker-compose.yml", "Compose manifest")
	flags.StringVarP(&opts.service, "service", "s", "", "Service to run when the manifest declares several")
	flags.StringArrayVar(&opts.envFiles, "env-file", nil, "Extra env file merged over the service environment (repeatable)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newUpCmd(opts))
	rootCmd.AddCommand(newDownCmd(opts))
	rootCmd.AddCommand(newStatusCmd(opts))
	rootCmd.AddCommand(newLogsCmd(opts))
	rootCmd.AddCommand(newConfigCmd(opts))
	rootCmd.AddCommand(newVersionCmd(opts))

	return rootCmd
}

// appOptions turns the global flags into app options.
func (o *rootOptions) appOptions() app.Options {
	return app.Options{
		ConfigPath:   o.configPath,
		ManifestPath: o.manifestPath,
		Service:      o.service,
		EnvFiles:     o.envFiles,
		LogLevel:     o.logLevel,
	}
}

// withSandbox opens a session, loads the spec and runs fn.
func withSandbox(ctx context.Context, opts app.Options, fn func(ctx context.Context, svc in.SandboxService, spec *domain.ServiceSpec) error) (err error) {
	sess, svc, ctx, err := openSession(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	spec, err := sess.LoadSpec(ctx)
	if err != nil {
		return err
	}
	return fn(ctx, svc, spec)
}

// SetVersionInfo sets the version information for the CLI.
func SetVersionInfo(version, commit, date string) {
	Version = version
	Commit = commit
	BuildDate = date
}
