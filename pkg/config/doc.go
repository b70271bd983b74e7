// Package config loads device and resilience settings from YAML files
// or loosely-typed maps.
//
// Two entry points exist: Load for files, and FromMap for settings
// handed over by management layers that store configuration as
// map[string]any. FromMap is deliberately forgiving: it accepts the
// key aliases in the wild (host/address/ip, secret/password,
// protocol/type), ports as numbers or strings, and degrades a
// malformed options payload to an empty map rather than rejecting the
// whole device entry.
package config
