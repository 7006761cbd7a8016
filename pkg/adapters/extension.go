package adapters

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/desktide/desktide/pkg/engine"
	"github.com/desktide/desktide/pkg/resource"
	"github.com/desktide/desktide/pkg/telemetry"
)

// ExtensionInstallAdapter fetches a shell extension archive, extracts
// it to the extension directory only if not already present, and
// enables it through the preference store's enabled-extensions list.
type ExtensionInstallAdapter struct {
	fetch *Fetcher
	store *PrefStore
	log   *telemetry.Logger
}

// NewExtensionInstallAdapter creates an extension adapter.
func NewExtensionInstallAdapter(fetch *Fetcher, store *PrefStore, log *telemetry.Logger) *ExtensionInstallAdapter {
	if log == nil {
		log = telemetry.NopLogger()
	}
	return &ExtensionInstallAdapter{fetch: fetch, store: store, log: log.NewComponentLogger("extension")}
}

// Kind implements engine.Adapter.
func (a *ExtensionInstallAdapter) Kind() resource.Kind { return resource.KindExtensionInstall }

// ConcurrencySafe implements engine.Adapter. Enabling goes through the
// single session preference store.
func (a *ExtensionInstallAdapter) ConcurrencySafe() bool { return false }

// Probe checks the extension directory and, when enable targets are
// declared, membership in the enabled-extensions list.
func (a *ExtensionInstallAdapter) Probe(ctx context.Context, res *resource.Resource) (engine.ProbeResult, error) {
	spec := res.Spec.(*resource.ExtensionSpec)

	dir := filepath.Join(spec.InstallDir, spec.UUID)
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return engine.ProbeResult{Reason: fmt.Sprintf("extension %s not installed", spec.UUID)}, nil
		}
		return engine.ProbeResult{}, engine.NewPermanentError(fmt.Sprintf("stat %s", dir), err).
			WithCode(engine.ErrCodeCommand)
	}

	if len(spec.EnableTargets) == 0 {
		return engine.ProbeResult{Satisfied: true,
			Reason: fmt.Sprintf("extension %s installed", spec.UUID)}, nil
	}

	enabled, err := a.enabled(ctx, spec)
	if err != nil {
		return engine.ProbeResult{}, err
	}
	if enabled {
		return engine.ProbeResult{Satisfied: true,
			Reason: fmt.Sprintf("extension %s installed and enabled", spec.UUID)}, nil
	}
	return engine.ProbeResult{Reason: fmt.Sprintf("extension %s installed but not enabled", spec.UUID)}, nil
}

func (a *ExtensionInstallAdapter) enabled(ctx context.Context, spec *resource.ExtensionSpec) (bool, error) {
	target, err := a.store.ResolveTarget(ctx, spec.EnableTargets)
	if err != nil {
		return false, err
	}
	current, err := a.store.Get(ctx, target)
	if err != nil {
		return false, err
	}
	elems, err := parseListValue(current)
	if err != nil {
		return false, engine.NewPermanentError(
			fmt.Sprintf("parse enabled-extensions value %q", current), err).
			WithCode(engine.ErrCodeCommand)
	}
	return containsElem(elems, quoteElem(spec.UUID)), nil
}

// Apply extracts the archive if the directory is absent, then enables
// the extension.
func (a *ExtensionInstallAdapter) Apply(ctx context.Context, res *resource.Resource) (*engine.ApplyResult, error) {
	spec := res.Spec.(*resource.ExtensionSpec)

	changed := false
	dir := filepath.Join(spec.InstallDir, spec.UUID)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := a.install(ctx, spec, dir); err != nil {
			return nil, err
		}
		changed = true
	}

	if len(spec.EnableTargets) > 0 {
		enabledChanged, err := a.enable(ctx, spec)
		if err != nil {
			return nil, err
		}
		changed = changed || enabledChanged
	}

	applied := &engine.ApplyResult{
		Changed: changed,
		Detail:  fmt.Sprintf("extension %s installed and enabled", spec.UUID),
	}
	if changed {
		applied.Flags = []engine.AdvisoryFlag{engine.FlagLogoutRequired}
	}
	return applied, nil
}

func (a *ExtensionInstallAdapter) install(ctx context.Context, spec *resource.ExtensionSpec, dir string) error {
	tmp, err := os.CreateTemp("", "desktide-ext-*.zip")
	if err != nil {
		return engine.NewPermanentError("create temp file", err).
			WithCode(engine.ErrCodeCommand)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := a.fetch.Download(ctx, spec.URL, tmpPath, ""); err != nil {
		return err
	}
	if err := extractZip(tmpPath, dir); err != nil {
		os.RemoveAll(dir)
		return engine.NewPermanentError(fmt.Sprintf("extract extension to %s", dir), err).
			WithCode(engine.ErrCodeCommand)
	}
	return nil
}

func (a *ExtensionInstallAdapter) enable(ctx context.Context, spec *resource.ExtensionSpec) (bool, error) {
	target, err := a.store.ResolveTarget(ctx, spec.EnableTargets)
	if err != nil {
		return false, err
	}
	current, err := a.store.Get(ctx, target)
	if err != nil {
		return false, err
	}
	elems, err := parseListValue(current)
	if err != nil {
		return false, engine.NewPermanentError(
			fmt.Sprintf("parse enabled-extensions value %q", current), err).
			WithCode(engine.ErrCodeCommand)
	}

	elem := quoteElem(spec.UUID)
	if containsElem(elems, elem) {
		return false, nil
	}
	elems = append(elems, elem)
	if err := a.store.Set(ctx, target, formatListValue(elems)); err != nil {
		return false, err
	}
	return true, nil
}

func quoteElem(s string) string {
	return "'" + s + "'"
}

// extractZip unpacks an archive, rejecting entries that would escape
// the destination directory.
func extractZip(archivePath, dest string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer reader.Close()

	if err := os.MkdirAll(dest, 0755); err != nil {
		return err
	}

	for _, file := range reader.File {
		name := filepath.Clean(file.Name)
		if name == "." || strings.HasPrefix(name, "..") || filepath.IsAbs(name) {
			return fmt.Errorf("archive entry %q escapes destination", file.Name)
		}
		target := filepath.Join(dest, name)

		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}

		src, err := file.Open()
		if err != nil {
			return err
		}
		dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, file.Mode().Perm())
		if err != nil {
			src.Close()
			return err
		}
		_, copyErr := io.Copy(dst, src)
		src.Close()
		if closeErr := dst.Close(); copyErr == nil {
			copyErr = closeErr
		}
		if copyErr != nil {
			return copyErr
		}
	}
	return nil
}
