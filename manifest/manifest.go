// Package manifest describes installed capabilities.
package manifest

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Metadata is the descriptor shipped next to a capability artifact.
type Metadata struct {
	// Name must match the name the capability is requested under.
	Name string `json:"name" yaml:"name" jsonschema:"minLength=1"`

	// Version is the semantic version of the installed capability.
	Version string `json:"version,omitempty" yaml:"version,omitempty"`

	// Description is a human-readable summary.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Exports lists the functions the artifact must export.
	Exports []string `json:"exports,omitempty" yaml:"exports,omitempty"`
}

// Parser parses raw manifest bytes into Metadata.
type Parser interface {
	// Parse unmarshals manifest bytes into a Metadata struct.
	Parse(data []byte) (*Metadata, error)
}

// Filenames lists the manifest files looked for, in order of preference.
var Filenames = []string{"metadata.json", "metadata.yaml", "metadata.yml"}

// ParserFor picks a parser from a manifest filename's extension.
func ParserFor(filename string) (Parser, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		return NewJSONParser(), nil
	case ".yaml", ".yml":
		return NewYAMLParser(), nil
	default:
		return nil, fmt.Errorf("unsupported manifest format: %s", filename)
	}
}

// CheckVersion reports whether the installed version satisfies constraint.
// An empty constraint accepts any version.
func CheckVersion(meta *Metadata, constraint string) error {
	if constraint == "" {
		return nil
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return fmt.Errorf("invalid version constraint %q: %w", constraint, err)
	}
	if meta.Version == "" {
		return fmt.Errorf("capability %s declares no version, %q required", meta.Name, constraint)
	}
	v, err := semver.NewVersion(meta.Version)
	if err != nil {
		return fmt.Errorf("capability %s has invalid version %q: %w", meta.Name, meta.Version, err)
	}
	if !c.Check(v) {
		return &VersionError{Name: meta.Name, Installed: v.Original(), Constraint: constraint}
	}
	return nil
}

// VersionError indicates the installed capability is incompatible with the host.
type VersionError struct {
	Name       string
	Installed  string
	Constraint string
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("capability %s version %s does not satisfy %q", e.Name, e.Installed, e.Constraint)
}
