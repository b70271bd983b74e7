// Package controller implements the per-device session layer.
//
// A Controller binds one codec to one connection at a time and
// translates high-level operations (power, input, mute, status) into
// codec commands. The session walks Disconnected -> Connecting ->
// Connected -> Authenticated; every operation reconnects lazily when
// the session has been torn down:
//
//	c := controller.New(pjlink.NewCodec(), controller.Config{
//		Endpoint: "10.0.0.5:4352",
//		Secret:   secret,
//	})
//	resp, err := c.PowerOn(ctx)
//
// Authentication failures feed a local lockout: after MaxAuthFailures
// consecutive rejections the controller refuses to dial at all until
// LockoutDuration has elapsed, so a misconfigured secret cannot hammer
// the device. The failure count survives reconnects and resets only on
// success or an explicit ClearLockout.
//
// Device-reported failures (busy, bad parameter, undefined command)
// come back inside the Response, not as Go errors; errors are reserved
// for transport faults, capability misses, auth rejections and the
// lockout. A bounded history ring records recent commands with their
// timing and outcome.
package controller
