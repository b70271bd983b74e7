// Package interactive provides the readline command shell for
// avlink-ctl.
package interactive

import (
	"context"
	"fmt"
	"io"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/avlink-protocol/avlink-go/pkg/breaker"
	"github.com/avlink-protocol/avlink-go/pkg/config"
	"github.com/avlink-protocol/avlink-go/pkg/discovery"
	"github.com/avlink-protocol/avlink-go/pkg/metrics"
	"github.com/avlink-protocol/avlink-go/pkg/registry"
	"github.com/avlink-protocol/avlink-go/pkg/resilient"
	"github.com/avlink-protocol/avlink-go/pkg/telemetry"
)

// Shell drives one device session from the terminal.
type Shell struct {
	reg      *registry.Registry
	settings config.Settings
	logger   telemetry.Logger
	rec      *metrics.Recorder
	rl       *readline.Instance

	facade *resilient.Facade
	brk    *breaker.Breaker
}

// New creates the shell. The settings provide the initial connection
// target; connect may override host, port and protocol later.
func New(reg *registry.Registry, settings config.Settings, logger telemetry.Logger) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "avlink> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	return &Shell{
		reg:      reg,
		settings: settings,
		logger:   logger,
		rec:      metrics.NewRecorder(prometheus.NewRegistry()),
		rl:       rl,
	}, nil
}

// Stdout returns a writer that coordinates with the readline prompt.
// Use this for log output to avoid interfering with input.
func (s *Shell) Stdout() io.Writer {
	return s.rl.Stdout()
}

// Close releases the terminal and the active session.
func (s *Shell) Close() error {
	if s.facade != nil {
		if err := s.facade.Controller().Close(); err != nil {
			fmt.Fprintf(s.rl.Stdout(), "Error closing controller: %v\n", err)
		}
		s.facade = nil
	}
	return s.rl.Close()
}

// Connect builds a controller and facade for the current settings and
// opens the session.
func (s *Shell) Connect(ctx context.Context) error {
	if s.settings.Host == "" {
		return fmt.Errorf("no host configured (use: connect <host[:port]> [protocol])")
	}

	if s.facade != nil {
		s.facade.Controller().Close()
		s.facade = nil
	}

	ctl, err := s.reg.Create(registry.Options{
		Protocol: s.settings.Protocol,
		Host:     s.settings.Host,
		Port:     s.settings.Port,
		Secret:   s.settings.Secret,
		Timeout:  s.settings.Timeout.Std(),
		Options:  s.settings.Options,
		Logger:   s.logger,
		Metrics:  s.rec,
	})
	if err != nil {
		return err
	}

	s.brk = breaker.New(ctl.Endpoint(), breaker.Config{
		FailureThreshold: s.settings.Breaker.FailureThreshold,
		SuccessThreshold: s.settings.Breaker.SuccessThreshold,
		Timeout:          s.settings.Breaker.Timeout.Std(),
		HalfOpenMaxCalls: s.settings.Breaker.HalfOpenMaxCalls,
	}, breaker.WithLogger(s.logger), breaker.WithMetrics(s.rec))

	policy, err := retryPolicy(s.settings.Retry)
	if err != nil {
		ctl.Close()
		return err
	}

	s.facade = resilient.New(ctl,
		resilient.WithBreaker(s.brk),
		resilient.WithRetryPolicy(policy),
		resilient.WithMetrics(s.rec),
	)

	if err := ctl.Connect(ctx); err != nil {
		return fmt.Errorf("connect %s: %w", ctl.Endpoint(), err)
	}
	fmt.Fprintf(s.rl.Stdout(), "Connected to %s (%s, session %s)\n",
		ctl.Endpoint(), ctl.Protocol(), ctl.State())
	return nil
}

func retryPolicy(r config.RetrySettings) (resilient.RetryPolicy, error) {
	strategy, err := resilient.ParseStrategy(r.Strategy)
	if err != nil {
		return resilient.RetryPolicy{}, err
	}
	if r.Strategy == "" {
		strategy = resilient.StrategyExponentialJitter
	}
	return resilient.RetryPolicy{
		Strategy:     strategy,
		MaxRetries:   r.MaxRetries,
		BaseDelay:    r.BaseDelay.Std(),
		MaxDelay:     r.MaxDelay.Std(),
		JitterFactor: r.JitterFactor,
	}, nil
}

// Run starts the interactive command loop.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc) {
	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		args := strings.Fields(input)
		if strings.EqualFold(args[0], "quit") || strings.EqualFold(args[0], "exit") || args[0] == "q" {
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			cancel()
			return
		}
		s.Dispatch(ctx, args)
	}
}

// Dispatch runs one command line. It reports whether the command
// succeeded, for one-shot mode exit codes.
func (s *Shell) Dispatch(ctx context.Context, args []string) bool {
	cmd := strings.ToLower(args[0])
	args = args[1:]

	switch cmd {
	case "help", "?":
		s.printHelp()
		return true

	case "connect":
		return s.cmdConnect(ctx, args)

	case "power":
		return s.cmdPower(ctx, args)

	case "status":
		return s.cmdStatus(ctx)

	case "input":
		return s.cmdInput(ctx, args)

	case "inputs":
		return s.report(s.withFacade(func(f *resilient.Facade) resilient.Result {
			return f.AvailableInputs(ctx)
		}))

	case "mute":
		return s.cmdMute(ctx, args)

	case "freeze":
		return s.cmdToggle(ctx, args, (*resilient.Facade).Freeze, (*resilient.Facade).Unfreeze)

	case "blank":
		return s.cmdToggle(ctx, args, (*resilient.Facade).Blank, (*resilient.Facade).Unblank)

	case "lamp":
		return s.report(s.withFacade(func(f *resilient.Facade) resilient.Result {
			return f.LampHours(ctx)
		}))

	case "filter":
		return s.report(s.withFacade(func(f *resilient.Facade) resilient.Result {
			return f.FilterHours(ctx)
		}))

	case "errors":
		return s.report(s.withFacade(func(f *resilient.Facade) resilient.Result {
			return f.ErrorStatus(ctx)
		}))

	case "info":
		return s.report(s.withFacade(func(f *resilient.Facade) resilient.Result {
			return f.Info(ctx)
		}))

	case "ping":
		return s.report(s.withFacade(func(f *resilient.Facade) resilient.Result {
			return f.Ping(ctx)
		}))

	case "detect":
		return s.cmdDetect(ctx, args)

	case "discover":
		return s.cmdDiscover(ctx)

	case "history":
		return s.cmdHistory()

	default:
		fmt.Fprintf(s.rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		return false
	}
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.rl.Stdout(), `
AVLink Commands:
  Session:
    connect [host[:port]] [protocol] - Connect (or reconnect) to a device
    status             - Show power, session and circuit state
    history            - Show recent commands

  Control:
    power on|off       - Switch the device on or to standby
    input <name>       - Select an input (e.g. hdmi1, rgb2, 31)
    inputs             - List the device's inputs
    mute on|off        - Mute or restore audio and video
    freeze [on|off]    - Freeze or release the displayed image
    blank [on|off]     - Blank or restore the picture

  Queries:
    lamp               - Show lamp usage
    filter             - Show filter usage
    errors             - Show the device error report
    info               - Show device identity
    ping               - Check the session is alive

  Network:
    detect [host]      - Probe which protocol a host speaks
    discover           - Browse for projectors via mDNS

  General:
    help               - Show this help
    quit               - Exit`)
}

// withFacade runs op through the active session, or reports a usage
// error when nothing is connected.
func (s *Shell) withFacade(op func(*resilient.Facade) resilient.Result) resilient.Result {
	if s.facade == nil {
		return resilient.Result{
			Err:  fmt.Errorf("not connected (use: connect <host[:port]> [protocol])"),
			Code: resilient.CodeError,
		}
	}
	return op(s.facade)
}

// report prints a facade result and returns its success flag.
func (s *Shell) report(res resilient.Result) bool {
	out := s.rl.Stdout()
	if !res.Success {
		fmt.Fprintf(out, "FAILED (%s, %d attempt(s)): %v\n", res.Code, res.Attempts, res.Err)
		return false
	}
	if len(res.Value) == 0 {
		fmt.Fprintln(out, "OK")
		return true
	}
	keys := make([]string, 0, len(res.Value))
	for k := range res.Value {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "  %-14s %s\n", k, res.Value[k])
	}
	return true
}

func (s *Shell) cmdConnect(ctx context.Context, args []string) bool {
	if len(args) > 0 {
		host, port, err := splitHostPort(args[0])
		if err != nil {
			fmt.Fprintf(s.rl.Stdout(), "Invalid target: %v\n", err)
			return false
		}
		s.settings.Host = host
		s.settings.Port = port
	}
	if len(args) > 1 {
		s.settings.Protocol = args[1]
		s.settings.Port = 0 // Back to the protocol default.
	}
	if err := s.Connect(ctx); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Connect failed: %v\n", err)
		return false
	}
	return true
}

// splitHostPort accepts "host", "host:port" and "[v6]:port" forms.
func splitHostPort(target string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		return target, 0, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("bad port %q", portStr)
	}
	return host, port, nil
}

func (s *Shell) cmdPower(ctx context.Context, args []string) bool {
	if len(args) == 0 {
		return s.report(s.withFacade(func(f *resilient.Facade) resilient.Result {
			return f.PowerState(ctx)
		}))
	}
	switch strings.ToLower(args[0]) {
	case "on":
		return s.report(s.withFacade(func(f *resilient.Facade) resilient.Result {
			return f.PowerOn(ctx)
		}))
	case "off":
		return s.report(s.withFacade(func(f *resilient.Facade) resilient.Result {
			return f.PowerOff(ctx)
		}))
	default:
		fmt.Fprintln(s.rl.Stdout(), "Usage: power [on|off]")
		return false
	}
}

func (s *Shell) cmdInput(ctx context.Context, args []string) bool {
	if len(args) != 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: input <name>")
		return false
	}
	return s.report(s.withFacade(func(f *resilient.Facade) resilient.Result {
		return f.SetInput(ctx, args[0])
	}))
}

func (s *Shell) cmdMute(ctx context.Context, args []string) bool {
	if len(args) != 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: mute on|off")
		return false
	}
	switch strings.ToLower(args[0]) {
	case "on":
		return s.report(s.withFacade(func(f *resilient.Facade) resilient.Result {
			return f.MuteOn(ctx)
		}))
	case "off":
		return s.report(s.withFacade(func(f *resilient.Facade) resilient.Result {
			return f.MuteOff(ctx)
		}))
	default:
		fmt.Fprintln(s.rl.Stdout(), "Usage: mute on|off")
		return false
	}
}

// cmdToggle handles the freeze and blank commands, which default to
// "on" when no argument is given.
func (s *Shell) cmdToggle(ctx context.Context, args []string, on, off func(*resilient.Facade, context.Context) resilient.Result) bool {
	mode := "on"
	if len(args) > 0 {
		mode = strings.ToLower(args[0])
	}
	switch mode {
	case "on":
		return s.report(s.withFacade(func(f *resilient.Facade) resilient.Result {
			return on(f, ctx)
		}))
	case "off":
		return s.report(s.withFacade(func(f *resilient.Facade) resilient.Result {
			return off(f, ctx)
		}))
	default:
		fmt.Fprintln(s.rl.Stdout(), "Usage: freeze|blank [on|off]")
		return false
	}
}

func (s *Shell) cmdStatus(ctx context.Context) bool {
	out := s.rl.Stdout()
	if s.facade == nil {
		fmt.Fprintln(out, "Not connected")
		return true
	}
	ctl := s.facade.Controller()
	fmt.Fprintf(out, "Endpoint:  %s\n", ctl.Endpoint())
	fmt.Fprintf(out, "Protocol:  %s\n", ctl.Protocol())
	fmt.Fprintf(out, "Session:   %s\n", ctl.State())
	fmt.Fprintf(out, "Auth:      %s (%d failure(s))\n", ctl.AuthState(), ctl.AuthFailures())
	fmt.Fprintf(out, "Circuit:   %s\n", s.facade.CircuitState())

	res := s.facade.PowerState(ctx)
	if res.Success {
		fmt.Fprintf(out, "Power:     %s\n", res.Value["power"])
	} else {
		fmt.Fprintf(out, "Power:     unavailable (%s): %v\n", res.Code, res.Err)
	}
	return true
}

func (s *Shell) cmdDetect(ctx context.Context, args []string) bool {
	host := s.settings.Host
	if len(args) > 0 {
		host = args[0]
	}
	if host == "" {
		fmt.Fprintln(s.rl.Stdout(), "Usage: detect <host>")
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	id, err := s.reg.Detect(probeCtx, host, nil)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Detection failed for %s: %v\n", host, err)
		return false
	}
	fmt.Fprintf(s.rl.Stdout(), "%s speaks %s\n", host, id)
	return true
}

func (s *Shell) cmdDiscover(ctx context.Context) bool {
	out := s.rl.Stdout()
	fmt.Fprintln(out, "Browsing for projectors...")

	projectors, err := discovery.FindProjectors(ctx, discovery.DefaultTimeout)
	if err != nil {
		fmt.Fprintf(out, "Discovery failed: %v\n", err)
		return false
	}
	if len(projectors) == 0 {
		fmt.Fprintln(out, "No projectors found")
		return true
	}
	for _, p := range projectors {
		fmt.Fprintf(out, "  %-30s %s\n", p.Name, p.Endpoint())
	}
	return true
}

func (s *Shell) cmdHistory() bool {
	out := s.rl.Stdout()
	if s.facade == nil {
		fmt.Fprintln(out, "Not connected")
		return true
	}
	entries := s.facade.Controller().History()
	if len(entries) == 0 {
		fmt.Fprintln(out, "No commands recorded")
		return true
	}
	for _, e := range entries {
		status := "ok"
		if !e.Success {
			status = "failed"
		}
		fmt.Fprintf(out, "  %s  %-16s %-6s %s\n",
			e.Start.Format("15:04:05.000"), e.Command, status, e.Duration.Round(time.Millisecond))
	}
	return true
}
