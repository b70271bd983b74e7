// Command avlink-ctl is an interactive controller for networked AV
// devices (projectors, displays) speaking PJLink or Hitachi binary.
//
// This command demonstrates the full client stack:
//   - CLI argument parsing
//   - Configuration file support
//   - Protocol detection and mDNS discovery
//   - Interactive command interface with retry and circuit breaking
//   - CBOR telemetry capture
//
// Usage:
//
//	avlink-ctl [flags] [command...]
//
// Flags:
//
//	-host string           Device hostname or IP
//	-port int              Device port (0 = protocol default)
//	-protocol string       Protocol: pjlink, hitachi, christie (default "pjlink")
//	-secret-file string    File containing the device password
//	-secret-env string     Environment variable holding the device password
//	-secret string         Device password (visible in process listings;
//	                       prefer -secret-file or -secret-env)
//	-config string         Configuration file path (YAML)
//	-timeout duration      Connect and per-exchange I/O timeout
//	-log-level string      Log level: debug, info, warn, error (default "info")
//	-telemetry-file string Append CBOR telemetry events to this file
//	-interactive           Enable interactive command mode
//
// Examples:
//
//	# Interactive session against a PJLink projector
//	avlink-ctl -host 10.0.0.20 -secret-env PJLINK_PASSWORD -interactive
//
//	# One-shot command against a Hitachi device on the auth port
//	avlink-ctl -host 10.0.0.21 -protocol hitachi -secret-file /etc/avlink/secret power on
//
//	# Detect which protocol a device speaks
//	avlink-ctl -host 10.0.0.22 detect
//
//	# Everything from a config file, with telemetry capture
//	avlink-ctl -config /etc/avlink/boardroom.yaml -telemetry-file /tmp/session.cbor -interactive
//
// Interactive Commands:
//
//	connect [host[:port]] [protocol] - Connect (or reconnect) to a device
//	power on|off - Switch the device on or to standby
//	status      - Show power, session and circuit state
//	input <name> - Select an input (e.g. hdmi1, rgb2, 31)
//	inputs      - List the device's inputs
//	mute on|off - Mute or restore audio and video
//	freeze [on|off] - Freeze or release the displayed image
//	blank [on|off]  - Blank or restore the picture
//	lamp        - Show lamp usage
//	errors      - Show the device error report
//	info        - Show device identity
//	detect [host] - Probe which protocol a host speaks
//	discover    - Browse for projectors via mDNS
//	history     - Show recent commands
//	quit        - Exit
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/avlink-protocol/avlink-go/cmd/avlink-ctl/interactive"
	"github.com/avlink-protocol/avlink-go/pkg/config"
	"github.com/avlink-protocol/avlink-go/pkg/registry"
	"github.com/avlink-protocol/avlink-go/pkg/telemetry"
)

// Config holds the parsed command-line surface.
type Config struct {
	Host          string
	Port          int
	Protocol      string
	Secret        string
	SecretFile    string
	SecretEnv     string
	ConfigFile    string
	Timeout       time.Duration
	LogLevel      string
	TelemetryFile string
	Interactive   bool
}

var cliConfig Config

func init() {
	flag.StringVar(&cliConfig.Host, "host", "", "Device hostname or IP")
	flag.IntVar(&cliConfig.Port, "port", 0, "Device port (0 = protocol default)")
	flag.StringVar(&cliConfig.Protocol, "protocol", "pjlink", "Protocol: pjlink, hitachi, christie")
	flag.StringVar(&cliConfig.Secret, "secret", "", "Device password (visible in process listings; prefer -secret-file or -secret-env)")
	flag.StringVar(&cliConfig.SecretFile, "secret-file", "", "File containing the device password")
	flag.StringVar(&cliConfig.SecretEnv, "secret-env", "", "Environment variable holding the device password")
	flag.StringVar(&cliConfig.ConfigFile, "config", "", "Configuration file path (YAML)")
	flag.DurationVar(&cliConfig.Timeout, "timeout", 0, "Connect and per-exchange I/O timeout")
	flag.StringVar(&cliConfig.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&cliConfig.TelemetryFile, "telemetry-file", "", "Append CBOR telemetry events to this file")
	flag.BoolVar(&cliConfig.Interactive, "interactive", false, "Enable interactive command mode")
}

func main() {
	flag.Parse()

	setupLogging(cliConfig.LogLevel)

	settings, err := buildSettings()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	secret, err := loadSecret()
	if err != nil {
		log.Fatalf("Failed to load secret: %v", err)
	}
	if secret != "" {
		settings.Secret = secret
	}

	logger, closeTelemetry, err := buildTelemetry()
	if err != nil {
		log.Fatalf("Failed to set up telemetry: %v", err)
	}
	defer closeTelemetry()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sh, err := interactive.New(registry.New(), settings, logger)
	if err != nil {
		log.Fatalf("Failed to create shell: %v", err)
	}
	defer sh.Close()

	if settings.Host != "" {
		if err := sh.Connect(ctx); err != nil {
			log.Printf("Connect failed: %v", err)
			if !cliConfig.Interactive {
				os.Exit(1)
			}
		}
	}

	// One-shot mode: run the trailing arguments as a single command.
	if args := flag.Args(); len(args) > 0 && !cliConfig.Interactive {
		if ok := sh.Dispatch(ctx, args); !ok {
			os.Exit(1)
		}
		return
	}

	if !cliConfig.Interactive {
		fmt.Fprintln(os.Stderr, "Nothing to do: pass a command or -interactive (see -h)")
		os.Exit(2)
	}

	// Redirect log output through readline to avoid interfering with input.
	log.SetOutput(sh.Stdout())
	go sh.Run(ctx, cancel)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal: %v", sig)
	case <-ctx.Done():
		// Cancelled by the quit command.
	}

	log.SetOutput(os.Stderr)
	log.Println("Goodbye!")
}

func setupLogging(level string) {
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	switch level {
	case "debug":
		log.SetFlags(log.Ltime | log.Lmicroseconds | log.Lshortfile)
	case "warn", "error":
		log.SetFlags(log.Ltime)
	}
}

// buildSettings merges the config file (when given) with explicit
// flags. Flags that were set on the command line win.
func buildSettings() (config.Settings, error) {
	var settings config.Settings
	if cliConfig.ConfigFile != "" {
		loaded, err := config.Load(cliConfig.ConfigFile)
		if err != nil {
			return config.Settings{}, err
		}
		settings = loaded
	}

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if set["host"] || settings.Host == "" {
		settings.Host = cliConfig.Host
	}
	if set["port"] {
		settings.Port = cliConfig.Port
	}
	if set["protocol"] || settings.Protocol == "" {
		settings.Protocol = cliConfig.Protocol
	}
	if set["timeout"] {
		settings.Timeout = config.Duration(cliConfig.Timeout)
	}
	settings.ApplyDefaults()
	return settings, nil
}

// loadSecret resolves the device password from -secret-file,
// -secret-env or -secret, in that order of preference.
func loadSecret() (string, error) {
	switch {
	case cliConfig.SecretFile != "":
		data, err := os.ReadFile(cliConfig.SecretFile)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(data)), nil
	case cliConfig.SecretEnv != "":
		v, ok := os.LookupEnv(cliConfig.SecretEnv)
		if !ok {
			return "", fmt.Errorf("environment variable %s is not set", cliConfig.SecretEnv)
		}
		return strings.TrimSpace(v), nil
	default:
		return cliConfig.Secret, nil
	}
}

// buildTelemetry assembles the event sink: a CBOR file logger when
// -telemetry-file is set, plus an slog bridge at debug level.
func buildTelemetry() (telemetry.Logger, func(), error) {
	var sinks []telemetry.Logger
	closeFn := func() {}

	if cliConfig.TelemetryFile != "" {
		fl, err := telemetry.NewFileLogger(cliConfig.TelemetryFile)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, fl)
		closeFn = func() {
			if err := fl.Close(); err != nil {
				log.Printf("Error closing telemetry file: %v", err)
			}
		}
	}

	if cliConfig.LogLevel == "debug" {
		handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
		sinks = append(sinks, telemetry.NewSlogAdapter(slog.New(handler)))
	}

	switch len(sinks) {
	case 0:
		return telemetry.NoopLogger{}, closeFn, nil
	case 1:
		return sinks[0], closeFn, nil
	default:
		return telemetry.NewMultiLogger(sinks...), closeFn, nil
	}
}
