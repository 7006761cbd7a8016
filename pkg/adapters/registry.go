package adapters

import (
	"github.com/desktide/desktide/pkg/engine"
	"github.com/desktide/desktide/pkg/telemetry"
)

// DefaultRegistry wires up all six adapters against the real system:
// shell-outs through run, downloads through fetch.
func DefaultRegistry(run CommandRunner, fetch *Fetcher, log *telemetry.Logger) *engine.Registry {
	store := NewPrefStore(run)

	registry := engine.NewRegistry()
	registry.Register(NewPackageAdapter(run, log))
	registry.Register(NewFlatpakAdapter(run, log))
	registry.Register(NewFileWriteAdapter())
	registry.Register(NewPreferenceAdapter(store, log))
	registry.Register(NewScriptInstallAdapter(run, fetch, log))
	registry.Register(NewExtensionInstallAdapter(fetch, store, log))
	return registry
}
