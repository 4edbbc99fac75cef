// Package pkgversion wraps Masterminds/semver for the Version type
// used by Release and Yank entries in a package log.
package pkgversion

import (
	"encoding/json"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Version is a parsed, comparable semantic version.
type Version struct {
	v *semver.Version
}

// Parse parses s as a semantic version.
func Parse(s string) (Version, error) {
	v, err := semver.NewVersion(s)
	if err != nil {
		return Version{}, fmt.Errorf("pkgversion: invalid version %q: %w", s, err)
	}
	return Version{v: v}, nil
}

// String renders the original normalized form.
func (v Version) String() string {
	if v.v == nil {
		return ""
	}
	return v.v.String()
}

// Compare returns -1, 0, or 1 as v is less than, equal to, or greater
// than o.
func (v Version) Compare(o Version) int {
	return v.v.Compare(o.v)
}

// Equal reports whether v and o denote the same version.
func (v Version) Equal(o Version) bool {
	return v.v != nil && o.v != nil && v.v.Equal(o.v)
}

func (v Version) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

func (v *Version) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
