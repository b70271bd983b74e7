// Package resilient wraps a device controller with retry, circuit
// breaking and a uniform Result.
//
// Every facade call returns a Result instead of a naked error:
// expected device failures (busy, undefined command, rejected
// credential) are classified with a stable machine-checkable code so
// calling layers can render status without interpreting internals.
//
// Retries apply only to transient failures: transport faults, pool
// exhaustion and a busy device. A rejected credential, a local auth
// lockout, an unsupported capability or an open circuit end the call
// immediately. The breaker, when attached, is consulted before the
// first attempt and again before every retry, and backoff sleeps are
// cut short by context cancellation.
//
//	f := resilient.New(ctl,
//		resilient.WithBreaker(brk),
//		resilient.WithRetryPolicy(resilient.RetryPolicy{
//			Strategy:   resilient.StrategyExponentialJitter,
//			MaxRetries: 3,
//			BaseDelay:  250 * time.Millisecond,
//			MaxDelay:   5 * time.Second,
//		}),
//	)
//	res := f.PowerOn(ctx)
//	if !res.Success {
//		log.Printf("power on failed after %d attempts: %s", res.Attempts, res.Code)
//	}
package resilient
