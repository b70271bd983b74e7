package resilient

import (
	"context"
	"strings"
	"time"

	"github.com/avlink-protocol/avlink-go/pkg/breaker"
	"github.com/avlink-protocol/avlink-go/pkg/controller"
	"github.com/avlink-protocol/avlink-go/pkg/metrics"
	"github.com/avlink-protocol/avlink-go/pkg/protocol"
)

// Facade wraps a device controller with retry, circuit breaking and a
// uniform Result. Safe for concurrent use to the extent the wrapped
// controller is.
type Facade struct {
	ctl    *controller.Controller
	brk    *breaker.Breaker
	policy RetryPolicy
	rec    *metrics.Recorder
}

// Option configures a Facade.
type Option func(*Facade)

// WithBreaker attaches a circuit breaker. The breaker is consulted
// before the first attempt and again before every retry.
func WithBreaker(b *breaker.Breaker) Option {
	return func(f *Facade) { f.brk = b }
}

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(f *Facade) { f.policy = p.withDefaults() }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(r *metrics.Recorder) Option {
	return func(f *Facade) { f.rec = r }
}

// New wraps the controller.
func New(ctl *controller.Controller, opts ...Option) *Facade {
	f := &Facade{ctl: ctl, policy: DefaultRetryPolicy()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Controller exposes the wrapped controller for state inspection.
func (f *Facade) Controller() *controller.Controller { return f.ctl }

// CircuitState returns the breaker state, or StateClosed when no
// breaker is attached.
func (f *Facade) CircuitState() breaker.State {
	if f.brk == nil {
		return breaker.StateClosed
	}
	return f.brk.State()
}

// Command executes one logical command through the retry loop.
func (f *Facade) Command(ctx context.Context, cmd protocol.Command) Result {
	return f.execute(ctx, cmd.String(), func(ctx context.Context) (map[string]string, error) {
		resp, err := f.ctl.Do(ctx, cmd)
		if err != nil {
			return nil, err
		}
		if !resp.Success {
			return nil, responseError(resp)
		}
		return resp.Payload, nil
	})
}

// execute runs op with breaker checks and backoff. The returned Result
// always carries the attempt count and elapsed time, success or not.
func (f *Facade) execute(ctx context.Context, name string, op func(ctx context.Context) (map[string]string, error)) Result {
	start := time.Now()
	attempts := 0
	var lastErr error

	for attempt := 0; ; attempt++ {
		if f.brk != nil {
			if err := f.brk.Allow(); err != nil {
				attempts++
				lastErr = err
				break
			}
		}

		value, err := op(ctx)
		attempts++
		if f.brk != nil {
			f.brk.Record(err)
		}
		if err == nil {
			f.rec.ObserveRetryAttempts(f.ctl.Endpoint(), name, attempts)
			return Result{
				Success:      true,
				Value:        value,
				Attempts:     attempts,
				Elapsed:      time.Since(start),
				CircuitState: f.CircuitState(),
			}
		}
		lastErr = err

		if attempt >= f.policy.MaxRetries || !Transient(err) {
			break
		}
		if err := sleep(ctx, f.policy.delay(attempt)); err != nil {
			lastErr = err
			break
		}
	}

	f.rec.ObserveRetryAttempts(f.ctl.Endpoint(), name, attempts)
	return Result{
		Success:      false,
		Err:          lastErr,
		Code:         Classify(lastErr),
		Attempts:     attempts,
		Elapsed:      time.Since(start),
		CircuitState: f.CircuitState(),
	}
}

// scalar wraps a single-value controller op as a one-entry payload.
func (f *Facade) scalar(ctx context.Context, name, key string, op func(ctx context.Context) (string, error)) Result {
	return f.execute(ctx, name, func(ctx context.Context) (map[string]string, error) {
		v, err := op(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]string{key: v}, nil
	})
}

// ack wraps an acknowledge-only controller op.
func (f *Facade) ack(ctx context.Context, name string, op func(ctx context.Context) (protocol.Response, error)) Result {
	return f.execute(ctx, name, func(ctx context.Context) (map[string]string, error) {
		resp, err := op(ctx)
		if err != nil {
			return nil, err
		}
		if !resp.Success {
			return nil, responseError(resp)
		}
		return resp.Payload, nil
	})
}

// PowerOn turns the device on.
func (f *Facade) PowerOn(ctx context.Context) Result {
	return f.ack(ctx, "POWER_ON", f.ctl.PowerOn)
}

// PowerOff turns the device off.
func (f *Facade) PowerOff(ctx context.Context) Result {
	return f.ack(ctx, "POWER_OFF", f.ctl.PowerOff)
}

// PowerState queries the power state into Value["power"].
func (f *Facade) PowerState(ctx context.Context) Result {
	return f.scalar(ctx, "POWER_QUERY", "power", f.ctl.PowerState)
}

// SetInput selects an input by friendly name or native code.
func (f *Facade) SetInput(ctx context.Context, nameOrCode string) Result {
	return f.ack(ctx, "INPUT_SELECT", func(ctx context.Context) (protocol.Response, error) {
		return f.ctl.SetInput(ctx, nameOrCode)
	})
}

// CurrentInput queries the active input into Value["input"].
func (f *Facade) CurrentInput(ctx context.Context) Result {
	return f.scalar(ctx, "INPUT_QUERY", "input", f.ctl.CurrentInput)
}

// AvailableInputs queries the input list into Value["inputs"],
// space-separated.
func (f *Facade) AvailableInputs(ctx context.Context) Result {
	return f.execute(ctx, "INPUT_LIST", func(ctx context.Context) (map[string]string, error) {
		inputs, err := f.ctl.AvailableInputs(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]string{"inputs": strings.Join(inputs, " ")}, nil
	})
}

// MuteOn mutes audio and video.
func (f *Facade) MuteOn(ctx context.Context) Result {
	return f.ack(ctx, "MUTE_ON", f.ctl.MuteOn)
}

// MuteOff restores audio and video.
func (f *Facade) MuteOff(ctx context.Context) Result {
	return f.ack(ctx, "MUTE_OFF", f.ctl.MuteOff)
}

// MuteState queries the mute state into Value["mute"].
func (f *Facade) MuteState(ctx context.Context) Result {
	return f.scalar(ctx, "MUTE_QUERY", "mute", f.ctl.MuteState)
}

// Freeze freezes the displayed image.
func (f *Facade) Freeze(ctx context.Context) Result {
	return f.ack(ctx, "FREEZE", f.ctl.Freeze)
}

// Unfreeze resumes live display.
func (f *Facade) Unfreeze(ctx context.Context) Result {
	return f.ack(ctx, "UNFREEZE", f.ctl.Unfreeze)
}

// Blank blanks the output.
func (f *Facade) Blank(ctx context.Context) Result {
	return f.ack(ctx, "BLANK", f.ctl.Blank)
}

// Unblank restores the output.
func (f *Facade) Unblank(ctx context.Context) Result {
	return f.ack(ctx, "UNBLANK", f.ctl.Unblank)
}

// LampHours queries lamp usage.
func (f *Facade) LampHours(ctx context.Context) Result {
	return f.execute(ctx, "LAMP_QUERY", func(ctx context.Context) (map[string]string, error) {
		return f.ctl.LampHours(ctx)
	})
}

// FilterHours queries filter usage.
func (f *Facade) FilterHours(ctx context.Context) Result {
	return f.execute(ctx, "FILTER_QUERY", func(ctx context.Context) (map[string]string, error) {
		return f.ctl.FilterHours(ctx)
	})
}

// Temperature queries device temperature where supported.
func (f *Facade) Temperature(ctx context.Context) Result {
	return f.execute(ctx, "TEMPERATURE_QUERY", func(ctx context.Context) (map[string]string, error) {
		return f.ctl.Temperature(ctx)
	})
}

// ErrorStatus queries the device's self-reported error state.
func (f *Facade) ErrorStatus(ctx context.Context) Result {
	return f.execute(ctx, "ERROR_QUERY", func(ctx context.Context) (map[string]string, error) {
		return f.ctl.ErrorStatus(ctx)
	})
}

// Info queries device identification.
func (f *Facade) Info(ctx context.Context) Result {
	return f.execute(ctx, "INFO_QUERY", func(ctx context.Context) (map[string]string, error) {
		return f.ctl.Info(ctx)
	})
}

// Ping checks device reachability with a lightweight query.
func (f *Facade) Ping(ctx context.Context) Result {
	return f.execute(ctx, "PING", func(ctx context.Context) (map[string]string, error) {
		return nil, f.ctl.Ping(ctx)
	})
}

// responseError converts a non-success Response into its typed error.
func responseError(resp protocol.Response) error {
	if resp.Code == protocol.CodeAuthFailed {
		return &protocol.AuthError{Reason: resp.Message}
	}
	code := resp.Code
	if code == "" {
		code = protocol.CodeDeviceFailure
	}
	return &protocol.DeviceError{Code: code, Message: resp.Message}
}

// sleep waits for d or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
