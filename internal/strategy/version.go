package strategy

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// VersionRecord is one entry in a strategy's version history, appended on
// every Registry.Update call per spec §6.
type VersionRecord struct {
	Version   string `json:"version"`
	Schema    Schema `json:"schema"`
	CreatedAt int64  `json:"createdAt"`
}

// BumpPatch increments the patch component of a MAJOR.MINOR.PATCH version
// string, per spec §6 Strategy persistence ("each update bumps patch").
func BumpPatch(version string) (string, error) {
	v, err := semver.NewVersion(version)
	if err != nil {
		return "", fmt.Errorf("strategy: invalid version %q: %w", version, err)
	}
	next := v.IncPatch()
	return next.String(), nil
}
