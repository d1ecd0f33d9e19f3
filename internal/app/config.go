package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/bnema/sandboxer/internal/adapters/out/httpprober"
	"github.com/bnema/sandboxer/internal/usecase/sandbox"
)

// Config holds the sandboxer configuration.
type Config struct {
	DataDir string `mapstructure:"data_dir"`

	Logging struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
		File   struct {
			Enabled    bool   `mapstructure:"enabled"`
			Path       string `mapstructure:"path"`
			MaxSize    int    `mapstructure:"max_size"`
			MaxBackups int    `mapstructure:"max_backups"`
			MaxAge     int    `mapstructure:"max_age"`
		} `mapstructure:"file"`
	} `mapstructure:"logging"`

	Engine struct {
		Host string `mapstructure:"host"` // empty uses DOCKER_HOST or the default socket
	} `mapstructure:"engine"`

	Project struct {
		Name string `mapstructure:"name"` // overrides the compose project name
	} `mapstructure:"project"`

	Timeouts struct {
		Build time.Duration `mapstructure:"build"`
		Start time.Duration `mapstructure:"start"`
		Stop  time.Duration `mapstructure:"stop"`
		Lock  time.Duration `mapstructure:"lock"`
	} `mapstructure:"timeouts"`

	Start struct {
		ReadinessDelay time.Duration `mapstructure:"readiness_delay"`
		ProbeTimeout   time.Duration `mapstructure:"probe_timeout"` // per request, for readiness URLs
	} `mapstructure:"start"`

	Image struct {
		PullPolicy string `mapstructure:"pull_policy"`
	} `mapstructure:"image"`

	Security struct {
		AllowPrivileged   bool `mapstructure:"allow_privileged"`
		AllowEngineSocket bool `mapstructure:"allow_engine_socket"`
	} `mapstructure:"security"`

	Preflight struct {
		CheckPorts bool `mapstructure:"check_ports"`
	} `mapstructure:"preflight"`

	Audit struct {
		Enabled    bool   `mapstructure:"enabled"`
		Path       string `mapstructure:"path"`
		MaxSize    int    `mapstructure:"max_size"`
		MaxBackups int    `mapstructure:"max_backups"`
		MaxAge     int    `mapstructure:"max_age"`
	} `mapstructure:"audit"`

	Env struct {
		Files []string `mapstructure:"files"`
	} `mapstructure:"env"`
}

// LoadConfig reads configuration from configPath, or from the standard
// search paths when it is empty. A missing file leaves the defaults.
func LoadConfig(configPath string) (Config, error) {
	v := viper.New()
	if err := loadConfig(v, configPath); err != nil {
		return Config{}, fmt.Errorf("failed to load config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if _, err := sandbox.ParsePullPolicy(cfg.Image.PullPolicy); err != nil {
		return Config{}, fmt.Errorf("invalid image.pull_policy: %w", err)
	}

	return cfg, nil
}

// loadConfig loads configuration from file and sets defaults.
func loadConfig(v *viper.Viper, configPath string) error {
	defaults := sandbox.DefaultConfig()

	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.enabled", false)
	v.SetDefault("logging.file.max_size", 100)
	v.SetDefault("logging.file.max_backups", 3)
	v.SetDefault("logging.file.max_age", 28)
	v.SetDefault("engine.host", "")
	v.SetDefault("project.name", "")
	v.SetDefault("timeouts.build", defaults.BuildTimeout)
	v.SetDefault("timeouts.start", defaults.StartTimeout)
	v.SetDefault("timeouts.stop", defaults.StopTimeout)
	v.SetDefault("timeouts.lock", defaults.LockTimeout)
	v.SetDefault("start.readiness_delay", time.Duration(0))
	v.SetDefault("start.probe_timeout", httpprober.DefaultTimeout)
	v.SetDefault("image.pull_policy", string(defaults.PullPolicy))
	v.SetDefault("security.allow_privileged", defaults.AllowPrivileged)
	v.SetDefault("security.allow_engine_socket", defaults.AllowEngineSocket)
	v.SetDefault("preflight.check_ports", defaults.CheckPorts)
	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.path", "") // defaults to {data_dir}/audit.log when empty
	v.SetDefault("audit.max_size", 10)
	v.SetDefault("audit.max_backups", 5)
	v.SetDefault("audit.max_age", 90)
	v.SetDefault("env.files", []string{})

	ConfigureViper(v, configPath)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("SANDBOXER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return nil
}

// sandboxConfig maps the file configuration onto the use case configuration.
func sandboxConfig(cfg Config) sandbox.Config {
	policy, _ := sandbox.ParsePullPolicy(cfg.Image.PullPolicy)
	return sandbox.Config{
		BuildTimeout:      cfg.Timeouts.Build,
		StartTimeout:      cfg.Timeouts.Start,
		StopTimeout:       cfg.Timeouts.Stop,
		LockTimeout:       cfg.Timeouts.Lock,
		ReadinessDelay:    cfg.Start.ReadinessDelay,
		PullPolicy:        policy,
		AllowPrivileged:   cfg.Security.AllowPrivileged,
		AllowEngineSocket: cfg.Security.AllowEngineSocket,
		CheckPorts:        cfg.Preflight.CheckPorts,
	}
}
