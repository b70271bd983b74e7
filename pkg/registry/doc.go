// Package registry maps protocol identifiers to controller
// constructors and performs best-effort protocol detection.
//
// A Registry is an explicitly owned object, injected wherever
// controllers are made; there is no package-level default. Identifier
// parsing is forgiving: "PJLink Class 1" and "HITACHI (TCP)" resolve
// like their plain forms. Christie requests build a PJLink controller
// because the native Christie transport stalls on common firmware;
// forcing the native protocol yields a NotImplementedError naming
// PJLink as the fallback.
//
//	reg := registry.New()
//	ctl, err := reg.Create(registry.Options{
//		Protocol: "pjlink",
//		Host:     "10.0.0.17",
//		Secret:   "panel",
//	})
//
// Detect probes candidate ports concurrently and picks by a fixed
// priority order, so a slow PJLink greeting still wins over a fast
// Hitachi reply.
package registry
