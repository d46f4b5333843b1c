package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration. It is built once at startup and
// handed to each component; nothing mutates it afterwards.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Compiler  CompilerConfig  `yaml:"compiler"`
	Sandbox   SandboxConfig   `yaml:"sandbox"`
	Limits    LimitsConfig    `yaml:"limits"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	CORS      CORSConfig      `yaml:"cors"`
	Wasm      WasmConfig      `yaml:"wasm"`
	Database  DatabaseConfig  `yaml:"database"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" validate:"required"`
	Port            int           `yaml:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" validate:"gte=0"`
}

type CompilerConfig struct {
	Path    string        `yaml:"path" validate:"required"`
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
}

type SandboxConfig struct {
	Isolator     string        `yaml:"isolator" validate:"oneof=sudo docker containerd"`
	User         string        `yaml:"user" validate:"required"`
	PathEnv      string        `yaml:"path_env" validate:"required"`
	RunTimeout   time.Duration `yaml:"run_timeout" validate:"gt=0"`
	Grace        time.Duration `yaml:"grace" validate:"gte=0"`
	CaptureLimit int64         `yaml:"capture_limit_bytes" validate:"gt=0"`

	// CommandTemplate is split with shell quoting rules; {timeout}, {user},
	// {path}, {bin} and {workdir} are replaced per field.
	CommandTemplate string `yaml:"command_template" validate:"required"`

	Image            string         `yaml:"image"`
	ContainerdSocket string         `yaml:"containerd_socket"`
	Namespace        string         `yaml:"namespace"`
	Limits           ResourceLimits `yaml:"limits"`
}

// ResourceLimits applies to the container isolators only; the sudo isolator
// relies on the host account's own limits.
type ResourceLimits struct {
	CPUShares int64 `yaml:"cpu_shares" validate:"gte=2,lte=4096"`
	MemoryMB  int64 `yaml:"memory_mb" validate:"gte=16,lte=2048"`
	PidsLimit int64 `yaml:"pids_limit" validate:"gte=5,lte=500"`
	DiskMB    int64 `yaml:"disk_mb" validate:"gte=1,lte=1024"`
}

type LimitsConfig struct {
	MaxCodeBytes   int64 `yaml:"max_code_bytes" validate:"gt=0"`
	MaxOutputBytes int   `yaml:"max_output_bytes" validate:"gt=0"`
	MaxWasmBytes   int64 `yaml:"max_wasm_bytes" validate:"gt=0"`
}

type WorkspaceConfig struct {
	Root string `yaml:"root" validate:"required"`
}

type CORSConfig struct {
	AllowedOrigin string `yaml:"allowed_origin" validate:"required"`
}

type WasmConfig struct {
	ValidateModule bool `yaml:"validate_module"`
}

type DatabaseConfig struct {
	DSN        string `yaml:"dsn"`
	MaxConns   int32  `yaml:"max_conns" validate:"gte=1"`
	BufferSize int    `yaml:"audit_buffer_size" validate:"gte=1"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path" validate:"required_if=Enabled true"`
}

// TracingConfig switches spans between the process-wide OpenTelemetry
// provider and a no-op tracer. Installing and exporting a provider is left to
// the deployment.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=trace debug info warn error"`
}

var validate = validator.New()

// Load reads configuration from a YAML file on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- path comes from CONFIG_PATH or the default
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns the production settings of tonyukuktr.com.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8081,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    40 * time.Second, // compile + run + grace, with headroom
			ShutdownTimeout: 30 * time.Second,
			MaxHeaderBytes:  16 << 10,
		},
		Compiler: CompilerConfig{
			Path:    "/var/www/tonyukuktr.com/derleyici/tonyukuk-derle",
			Timeout: 15 * time.Second,
		},
		Sandbox: SandboxConfig{
			Isolator:         "sudo",
			User:             "tonyukuktr",
			PathEnv:          "/usr/bin:/bin",
			RunTimeout:       5 * time.Second,
			Grace:            2 * time.Second,
			CaptureLimit:     1 << 20,
			CommandTemplate:  "timeout {timeout} sudo -u {user} env -i PATH={path} {bin}",
			Image:            "docker.io/library/debian:bookworm-slim",
			ContainerdSocket: "/run/containerd/containerd.sock",
			Namespace:        "playground",
			Limits: ResourceLimits{
				CPUShares: 512,
				MemoryMB:  128,
				PidsLimit: 32,
				DiskMB:    16,
			},
		},
		Limits: LimitsConfig{
			MaxCodeBytes:   8192,
			MaxOutputBytes: 32768,
			MaxWasmBytes:   524288,
		},
		Workspace: WorkspaceConfig{
			Root: "/tmp",
		},
		CORS: CORSConfig{
			AllowedOrigin: "https://tonyukuktr.com",
		},
		Wasm: WasmConfig{
			ValidateModule: true,
		},
		Database: DatabaseConfig{
			DSN:        "",
			MaxConns:   4,
			BufferSize: 1000,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "tonyukuk-playground",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate checks struct constraints and the relations between sections.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if !filepath.IsAbs(c.Workspace.Root) {
		return fmt.Errorf("workspace.root: %q must be an absolute path", c.Workspace.Root)
	}
	if c.Sandbox.Isolator != "sudo" && c.Sandbox.Image == "" {
		return fmt.Errorf("sandbox.image is required for the %s isolator", c.Sandbox.Isolator)
	}
	if c.Sandbox.Isolator == "sudo" && !strings.Contains(c.Sandbox.CommandTemplate, "{bin}") {
		return fmt.Errorf("sandbox.command_template must reference {bin}")
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path)
	}
	if budget := c.Compiler.Timeout + c.HarnessTimeout(); c.Server.WriteTimeout <= budget {
		log.Warn().
			Dur("write_timeout", c.Server.WriteTimeout).
			Dur("request_budget", budget).
			Msg("server.write_timeout does not cover compile and run budgets")
	}
	if c.Database.DSN != "" && strings.Contains(c.Database.DSN, "sslmode=disable") {
		log.Warn().Msg("database DSN has sslmode=disable, audit connections are unencrypted")
	}
	return nil
}

// ApplyEnv overrides the listen port from PLAYGROUND_PORT or PORT.
func (c *Config) ApplyEnv() error {
	for _, key := range []string{"PLAYGROUND_PORT", "PORT"} {
		if v := os.Getenv(key); v != "" {
			return c.SetPort(v)
		}
	}
	return nil
}

// SetPort parses and applies a port given as text.
func (c *Config) SetPort(v string) error {
	port, err := strconv.Atoi(v)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid port %q", v)
	}
	c.Server.Port = port
	return nil
}

// Address returns the listen address string.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// HarnessTimeout is the hard limit for the supervised program, grace included.
func (c *Config) HarnessTimeout() time.Duration {
	return c.Sandbox.RunTimeout + c.Sandbox.Grace
}
