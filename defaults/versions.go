package defaults

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

type acceptedVersion struct {
	label   string
	version *semver.Version
}

// versionMatcher resolves a declared schema version to the accepted label it
// is equal to under semantic versioning, so "1.0.0" and "v1.0" both map to
// "1.0".
type versionMatcher struct {
	accepted []acceptedVersion
}

func newVersionMatcher(labels []string) (*versionMatcher, error) {
	m := &versionMatcher{}
	for _, label := range labels {
		v, err := semver.NewVersion(label)
		if err != nil {
			return nil, fmt.Errorf("defaults: accepted schema version %q: %w", label, err)
		}
		m.accepted = append(m.accepted, acceptedVersion{label: label, version: v})
	}
	return m, nil
}

// Canonical returns the accepted label matching declared, or "".
func (m *versionMatcher) Canonical(declared string) string {
	v, err := semver.NewVersion(declared)
	if err != nil {
		return ""
	}
	for _, candidate := range m.accepted {
		if v.Equal(candidate.version) {
			return candidate.label
		}
	}
	return ""
}

// function exposes Canonical to rule expressions as acceptedVersion(v).
func (m *versionMatcher) function(args ...any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("acceptedVersion expects 1 argument, got %d", len(args))
	}
	declared, _ := args[0].(string)
	return m.Canonical(declared), nil
}
