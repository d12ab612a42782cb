// Package config holds the tracer's command-line and environment
// configuration.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the parsed command-line configuration.
type Config struct {
	// Command is the executable to run under tracing.
	Command string
	// Args are the arguments to pass to the command.
	Args []string
	// FilterExpr selects which extracted frames are reported (expr syntax).
	FilterExpr string
	// BPFObjectPath overrides the compiled BPF object location.
	BPFObjectPath string
	// Export enables OTLP span export of extracted frames.
	Export bool
}

// EnvConfig holds tuning knobs read from the environment.
type EnvConfig struct {
	// BPFObjectPath is where the compiled socket tracer object lives.
	BPFObjectPath string `env:"SOCKTRACE_BPF_OBJECT" envDefault:"/usr/lib/socktrace/socket_tracer.bpf.o"`
	// ParseThresholdBytes is how many buffered payload bytes trigger a
	// reassembly pass on a connection direction.
	ParseThresholdBytes int `env:"SOCKTRACE_PARSE_THRESHOLD" envDefault:"65536"`
	// FlushInterval bounds how long idle connections hold unparsed payloads.
	FlushInterval time.Duration `env:"SOCKTRACE_FLUSH_INTERVAL" envDefault:"500ms"`
	// LogLevel is a zerolog level name (debug, info, warn, error).
	LogLevel string `env:"SOCKTRACE_LOG_LEVEL" envDefault:"info"`
}

// ParseEnv parses tuning configuration from environment variables.
func ParseEnv() (*EnvConfig, error) {
	var cfg EnvConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment config: %w", err)
	}
	if cfg.ParseThresholdBytes <= 0 {
		return nil, fmt.Errorf("SOCKTRACE_PARSE_THRESHOLD must be positive, got %d", cfg.ParseThresholdBytes)
	}
	return &cfg, nil
}

// ParseArgs parses command-line arguments and returns a Config.
// Expected format: program_name [flags] -- <command> [args...]
func ParseArgs(args []string) (*Config, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("no arguments provided")
	}

	programName := args[0]
	cfg := &Config{}

	// Find the "--" separator, collecting flags on the way.
	cmdStart := -1
	for i := 1; i < len(args); i++ {
		if args[i] == "--" {
			cmdStart = i + 1
			break
		}

		switch args[i] {
		case "--filter", "-f":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("%s requires a value", args[i])
			}
			cfg.FilterExpr = args[i+1]
			i++
		case "--bpf-obj":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--bpf-obj requires a value")
			}
			cfg.BPFObjectPath = args[i+1]
			i++
		case "--export":
			cfg.Export = true
		default:
			return nil, fmt.Errorf("unknown flag %q", args[i])
		}
	}

	if cmdStart == -1 || cmdStart >= len(args) {
		return nil, fmt.Errorf("Usage: %s [--filter <expr>] [--bpf-obj <path>] [--export] -- <command> [args...]\nExample: %s -f 'status >= 500' -- curl http://localhost:8080/",
			programName, programName)
	}

	cmdArgs := args[cmdStart:]
	cfg.Command = cmdArgs[0]
	cfg.Args = cmdArgs[1:]

	return cfg, nil
}

// FullCommand returns the command and all its arguments as a slice.
func (c *Config) FullCommand() []string {
	return append([]string{c.Command}, c.Args...)
}
