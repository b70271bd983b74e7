// Package breaker implements a per-endpoint circuit breaker.
//
// Each breaker is a three-state machine. Closed counts consecutive
// failures and trips to Open at the failure threshold. Open rejects
// every call immediately, reporting the remaining cooldown. Once the
// cooldown elapses the next call moves the breaker to HalfOpen, which
// admits a bounded number of probe calls: enough consecutive probe
// successes close the circuit, any probe failure reopens it.
//
//	b := breaker.New("10.0.0.5:4352", breaker.Config{})
//	err := b.Do(ctx, func(ctx context.Context) error {
//		return controller.PowerOn(ctx)
//	})
//
// The transition from Open to HalfOpen happens lazily on access, so an
// idle breaker costs nothing. A Registry shares one configuration
// across endpoints and aggregates their statistics.
package breaker
