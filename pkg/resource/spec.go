package resource

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PackageSpec describes packages managed through the system package manager.
type PackageSpec struct {
	// Names lists the packages to install. At least one is required.
	Names []string `json:"names" yaml:"names" validate:"required,min=1,dive,required"`

	// Manager overrides package manager detection (e.g. "apt").
	Manager string `json:"manager,omitempty" yaml:"manager,omitempty"`

	// RefreshIndex runs an index refresh before installing.
	// A failed refresh is not fatal on its own; installation is still
	// attempted against the existing index.
	RefreshIndex bool `json:"refresh_index,omitempty" yaml:"refresh_index,omitempty"`

	// Advisory is an advisory flag raised when the install actually
	// changes the system (e.g. "reboot-required" for driver packages).
	Advisory string `json:"advisory,omitempty" yaml:"advisory,omitempty"`
}

// Kind implements Spec.
func (s *PackageSpec) Kind() Kind { return KindPackage }

// Validate implements Spec.
func (s *PackageSpec) Validate() error {
	if len(s.Names) == 0 {
		return fmt.Errorf("package spec requires at least one package name")
	}
	for _, name := range s.Names {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("package spec contains an empty package name")
		}
	}
	return nil
}

// FlatpakRemote identifies a flatpak remote to add before installing.
type FlatpakRemote struct {
	// Name is the remote name (e.g. "flathub").
	Name string `json:"name" yaml:"name" validate:"required"`

	// URL is the flatpakrepo URL for the remote.
	URL string `json:"url" yaml:"url" validate:"required,url"`
}

// FlatpakSpec describes an application installed from a flatpak remote.
type FlatpakSpec struct {
	// Ref is the application ref (e.g. "com.spotify.Client").
	Ref string `json:"ref" yaml:"ref" validate:"required"`

	// Remote is added with --if-not-exists before installation.
	Remote FlatpakRemote `json:"remote" yaml:"remote"`
}

// Kind implements Spec.
func (s *FlatpakSpec) Kind() Kind { return KindFlatpakApp }

// Validate implements Spec.
func (s *FlatpakSpec) Validate() error {
	if s.Ref == "" {
		return fmt.Errorf("flatpak spec requires a ref")
	}
	if s.Remote.Name == "" || s.Remote.URL == "" {
		return fmt.Errorf("flatpak spec requires a remote name and url")
	}
	return nil
}

// FileWriteSpec describes a file whose content should match the
// rendered template or literal content.
type FileWriteSpec struct {
	// Path is the absolute target path. A leading "~/" is expanded
	// to the invoking user's home directory at load time.
	Path string `json:"path" yaml:"path" validate:"required"`

	// Content is literal file content. Mutually exclusive with Template.
	Content string `json:"content,omitempty" yaml:"content,omitempty"`

	// Template is a text/template body rendered with Vars.
	Template string `json:"template,omitempty" yaml:"template,omitempty"`

	// Vars are template variables.
	Vars map[string]string `json:"vars,omitempty" yaml:"vars,omitempty"`

	// Mode is the octal file mode (e.g. "0644"). Defaults to 0644.
	Mode string `json:"mode,omitempty" yaml:"mode,omitempty"`

	// Backup copies an existing file aside with a timestamp suffix
	// before overwriting it.
	Backup bool `json:"backup,omitempty" yaml:"backup,omitempty"`
}

// Kind implements Spec.
func (s *FileWriteSpec) Kind() Kind { return KindFileWrite }

// Validate implements Spec.
func (s *FileWriteSpec) Validate() error {
	if s.Path == "" {
		return fmt.Errorf("file spec requires a path")
	}
	if s.Content != "" && s.Template != "" {
		return fmt.Errorf("file spec %s: content and template are mutually exclusive", s.Path)
	}
	if s.Content == "" && s.Template == "" {
		return fmt.Errorf("file spec %s: one of content or template is required", s.Path)
	}
	return nil
}

// ExpandHome expands a leading "~/" in path against the current user's
// home directory. Paths without the prefix are returned unchanged.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// PrefTarget is one candidate (schema, key) pair for a preference.
// Candidates are probed in order; the first whose schema exists on the
// target system wins. Schemas vary across desktop versions, so a
// preference commonly lists several.
type PrefTarget struct {
	// Schema is the settings schema (e.g. "org.cinnamon.desktop.interface").
	Schema string `json:"schema" yaml:"schema" validate:"required"`

	// Key is the key within the schema.
	Key string `json:"key" yaml:"key" validate:"required"`
}

// ListOpType is a read-modify-write operation on a list-valued key.
type ListOpType string

const (
	// ListOpEnsureContains appends the element if absent.
	ListOpEnsureContains ListOpType = "ensure-contains"

	// ListOpEnsureAbsent removes all occurrences of the element.
	ListOpEnsureAbsent ListOpType = "ensure-absent"

	// ListOpPrepend moves or inserts the element at the front.
	ListOpPrepend ListOpType = "prepend"
)

// ListOp describes a pure transformation of a list-valued preference:
// the desired value is a function of the current value rather than a
// fixed literal.
type ListOp struct {
	// Op is the transformation to apply.
	Op ListOpType `json:"op" yaml:"op" validate:"required,oneof=ensure-contains ensure-absent prepend"`

	// Element is the list element operated on, in GVariant text form
	// (e.g. "'firefox.desktop'").
	Element string `json:"element" yaml:"element" validate:"required"`
}

// PreferenceSpec describes a desktop preference key set to a desired value.
type PreferenceSpec struct {
	// Targets are candidate (schema, key) pairs, probed in order.
	Targets []PrefTarget `json:"targets" yaml:"targets" validate:"required,min=1,dive"`

	// Value is the desired value in GVariant text form.
	// Mutually exclusive with ListOp.
	Value string `json:"value,omitempty" yaml:"value,omitempty"`

	// ListOp transforms the current list value instead of replacing it.
	ListOp *ListOp `json:"list_op,omitempty" yaml:"list_op,omitempty"`
}

// Kind implements Spec.
func (s *PreferenceSpec) Kind() Kind { return KindPreferenceSet }

// Validate implements Spec.
func (s *PreferenceSpec) Validate() error {
	if len(s.Targets) == 0 {
		return fmt.Errorf("preference spec requires at least one target")
	}
	for _, t := range s.Targets {
		if t.Schema == "" || t.Key == "" {
			return fmt.Errorf("preference target requires both schema and key")
		}
	}
	if s.Value == "" && s.ListOp == nil {
		return fmt.Errorf("preference spec requires a value or a list_op")
	}
	if s.Value != "" && s.ListOp != nil {
		return fmt.Errorf("preference spec: value and list_op are mutually exclusive")
	}
	return nil
}

// ScriptInstallSpec describes a remote installer fetched to a private
// temp path, executed, and cleaned up regardless of outcome.
type ScriptInstallSpec struct {
	// URL is the installer download location.
	URL string `json:"url" yaml:"url" validate:"required,url"`

	// SHA256 optionally pins the expected digest of the download.
	SHA256 string `json:"sha256,omitempty" yaml:"sha256,omitempty"`

	// Interpreter runs the script (defaults to "/bin/sh").
	Interpreter string `json:"interpreter,omitempty" yaml:"interpreter,omitempty"`

	// Args are extra arguments passed to the script.
	Args []string `json:"args,omitempty" yaml:"args,omitempty"`

	// Check is a command whose zero exit means the install is already
	// satisfied (e.g. "command -v starship"). Empty means always apply.
	Check string `json:"check,omitempty" yaml:"check,omitempty"`

	// Advisory is an advisory flag raised when the script ran and
	// succeeded (e.g. "reboot-recommended").
	Advisory string `json:"advisory,omitempty" yaml:"advisory,omitempty"`
}

// Kind implements Spec.
func (s *ScriptInstallSpec) Kind() Kind { return KindScriptInstall }

// Validate implements Spec.
func (s *ScriptInstallSpec) Validate() error {
	if s.URL == "" {
		return fmt.Errorf("script spec requires a url")
	}
	return nil
}

// ExtensionSpec describes a shell extension: an archive extracted to a
// target directory if not already present, then enabled through the
// preference store.
type ExtensionSpec struct {
	// URL is the extension archive (zip) download location.
	URL string `json:"url" yaml:"url" validate:"required,url"`

	// UUID is the extension identifier (also the directory name).
	UUID string `json:"uuid" yaml:"uuid" validate:"required"`

	// InstallDir is the parent directory for extensions. A leading
	// "~/" is expanded at load time.
	InstallDir string `json:"install_dir" yaml:"install_dir" validate:"required"`

	// EnableTargets are candidate (schema, key) pairs for the
	// enabled-extensions list, probed in order.
	EnableTargets []PrefTarget `json:"enable_targets,omitempty" yaml:"enable_targets,omitempty"`
}

// Kind implements Spec.
func (s *ExtensionSpec) Kind() Kind { return KindExtensionInstall }

// Validate implements Spec.
func (s *ExtensionSpec) Validate() error {
	if s.URL == "" || s.UUID == "" || s.InstallDir == "" {
		return fmt.Errorf("extension spec requires url, uuid and install_dir")
	}
	return nil
}
