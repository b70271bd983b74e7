// Package avlink is a resilient client stack for networked AV
// presentation equipment.
//
// The stack is layered: pkg/pjlink and pkg/hitachi implement the wire
// codecs behind the pkg/protocol.Codec interface, pkg/controller runs
// one device session over pkg/pool and pkg/transport, pkg/registry
// builds controllers by protocol identifier, and pkg/resilient wraps a
// controller with retries and a pkg/breaker circuit breaker.
//
// Most programs start at the registry:
//
//	reg := registry.New()
//	ctl, err := reg.Create(registry.Options{
//		Protocol: "pjlink",
//		Host:     "10.0.0.20",
//		Secret:   os.Getenv("PJLINK_PASSWORD"),
//	})
//	if err != nil {
//		return err
//	}
//	defer ctl.Close()
//
//	f := resilient.New(ctl)
//	res := f.PowerOn(ctx)
//
// See cmd/avlink-ctl for a complete interactive client.
package avlink
