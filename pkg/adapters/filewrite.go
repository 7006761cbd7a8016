package adapters

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"text/template"
	"time"

	"github.com/desktide/desktide/pkg/engine"
	"github.com/desktide/desktide/pkg/resource"
)

// FileWriteAdapter writes configuration files. Existing files can be
// backed up with a timestamp suffix; the write itself goes through a
// temp file in the target directory and an atomic rename, so a crash
// never leaves a partial file behind.
type FileWriteAdapter struct{}

// NewFileWriteAdapter creates a file adapter.
func NewFileWriteAdapter() *FileWriteAdapter { return &FileWriteAdapter{} }

// Kind implements engine.Adapter.
func (a *FileWriteAdapter) Kind() resource.Kind { return resource.KindFileWrite }

// ConcurrencySafe implements engine.Adapter. Distinct files do not
// contend with each other.
func (a *FileWriteAdapter) ConcurrencySafe() bool { return true }

// Probe compares the target file's content hash against the rendered
// desired content.
func (a *FileWriteAdapter) Probe(ctx context.Context, res *resource.Resource) (engine.ProbeResult, error) {
	spec := res.Spec.(*resource.FileWriteSpec)

	content, err := renderContent(spec)
	if err != nil {
		return engine.ProbeResult{}, err
	}

	existing, err := os.ReadFile(spec.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return engine.ProbeResult{Reason: fmt.Sprintf("%s does not exist", spec.Path)}, nil
		}
		return engine.ProbeResult{}, engine.NewPermanentError(
			fmt.Sprintf("read %s", spec.Path), err).WithCode(engine.ErrCodeCommand)
	}

	if sha256.Sum256(existing) == sha256.Sum256(content) {
		return engine.ProbeResult{Satisfied: true,
			Reason: fmt.Sprintf("%s already has desired content", spec.Path)}, nil
	}
	return engine.ProbeResult{Reason: fmt.Sprintf("%s content differs", spec.Path)}, nil
}

// Apply renders the content and writes it atomically.
func (a *FileWriteAdapter) Apply(ctx context.Context, res *resource.Resource) (*engine.ApplyResult, error) {
	spec := res.Spec.(*resource.FileWriteSpec)

	content, err := renderContent(spec)
	if err != nil {
		return nil, err
	}

	mode := os.FileMode(0644)
	if spec.Mode != "" {
		parsed, err := strconv.ParseUint(spec.Mode, 8, 32)
		if err != nil {
			return nil, engine.NewPermanentError(
				fmt.Sprintf("invalid file mode %q", spec.Mode), err).
				WithCode(engine.ErrCodeCommand)
		}
		mode = os.FileMode(parsed)
	}

	dir := filepath.Dir(spec.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, engine.NewPermanentError(fmt.Sprintf("create directory %s", dir), err).
			WithCode(engine.ErrCodeCommand)
	}

	backedUp := ""
	if spec.Backup {
		if _, err := os.Stat(spec.Path); err == nil {
			backedUp = spec.Path + ".bak." + time.Now().Format("20060102-150405")
			if err := copyFile(spec.Path, backedUp); err != nil {
				return nil, engine.NewPermanentError(
					fmt.Sprintf("back up %s", spec.Path), err).
					WithCode(engine.ErrCodeCommand)
			}
		}
	}

	// Temp file in the target directory so the rename stays on one
	// filesystem and is atomic.
	tmp, err := os.CreateTemp(dir, filepath.Base(spec.Path)+".tmp-*")
	if err != nil {
		return nil, engine.NewPermanentError("create temp file", err).
			WithCode(engine.ErrCodeCommand)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, engine.NewPermanentError(fmt.Sprintf("write %s", tmpPath), err).
			WithCode(engine.ErrCodeCommand)
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, engine.NewPermanentError(fmt.Sprintf("chmod %s", tmpPath), err).
			WithCode(engine.ErrCodeCommand)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, engine.NewPermanentError(fmt.Sprintf("close %s", tmpPath), err).
			WithCode(engine.ErrCodeCommand)
	}
	if err := os.Rename(tmpPath, spec.Path); err != nil {
		os.Remove(tmpPath)
		return nil, engine.NewPermanentError(fmt.Sprintf("rename to %s", spec.Path), err).
			WithCode(engine.ErrCodeCommand)
	}

	detail := fmt.Sprintf("wrote %s", spec.Path)
	if backedUp != "" {
		detail += fmt.Sprintf(" (backup at %s)", backedUp)
	}
	return &engine.ApplyResult{Changed: true, Detail: detail}, nil
}

// renderContent returns the literal content or the rendered template.
func renderContent(spec *resource.FileWriteSpec) ([]byte, error) {
	if spec.Template == "" {
		return []byte(spec.Content), nil
	}

	tmpl, err := template.New(filepath.Base(spec.Path)).Parse(spec.Template)
	if err != nil {
		return nil, engine.NewPermanentError(
			fmt.Sprintf("parse template for %s", spec.Path), err).
			WithCode(engine.ErrCodeCommand)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, spec.Vars); err != nil {
		return nil, engine.NewPermanentError(
			fmt.Sprintf("render template for %s", spec.Path), err).
			WithCode(engine.ErrCodeCommand)
	}
	return buf.Bytes(), nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, info.Mode())
}
