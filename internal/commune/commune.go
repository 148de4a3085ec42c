// Package commune resolves a free-text place name to a French commune and
// its boundary via the geo.api.gouv.fr lookup service.
package commune

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// Commune is one administrative unit: display name, INSEE code and the
// boundary polygon in EPSG:4326. Immutable once resolved.
type Commune struct {
	Name    string
	Code    string
	Contour geom.T
}

// ChooseFunc disambiguates between several candidate communes. It may block
// awaiting external input; returning nil cancels the run.
type ChooseFunc func(candidates []Commune) *Commune

var (
	// ErrNotFound means the lookup returned zero matches.
	ErrNotFound = eris.New("commune: no match")

	// ErrCancelled means the caller declined to pick a candidate.
	ErrCancelled = eris.New("commune: selection cancelled")

	// ErrUpstreamUnavailable means the lookup service could not be reached
	// or answered with an error. Fatal to the whole pipeline.
	ErrUpstreamUnavailable = eris.New("commune: lookup service unavailable")
)

// DeriveDepartment derives the department code from an INSEE commune code.
// Corsican communes keep their letter prefix and overseas departments use
// three digits; everything else is the first two digits.
func DeriveDepartment(code string) string {
	switch {
	case len(code) >= 2 && code[:2] == "2A":
		return "2A"
	case len(code) >= 2 && code[:2] == "2B":
		return "2B"
	case len(code) >= 3 && code[:2] == "97":
		return code[:3]
	case len(code) >= 2:
		return code[:2]
	default:
		return code
	}
}
