// Package hermetic checks that aggregation groups contain exactly their
// expected member sets before any fusion runs.
package hermetic

import (
	"sort"

	"github.com/ahrav/go-cascade/internal/domain"
)

// Mode selects how a missing group member is treated. Unexpected members are
// a hard failure in every mode; the switch only governs missing ones.
type Mode string

const (
	// ModeStrict aborts aggregation when any expected member is absent.
	ModeStrict Mode = "strict"

	// ModeLenient records the gap and lets aggregation proceed over the
	// observed members only.
	ModeLenient Mode = "lenient"
)

// Report is the outcome of one hermeticity check.
type Report struct {
	// Hermetic is true when the observed set equals the expected set.
	Hermetic bool
	// Missing lists expected members that were absent, sorted.
	Missing []string
}

// Check compares the observed member keys of group against the expected set.
//
// Observed keys outside the expected set always return a HermeticityViolation
// regardless of mode: an unexpected member means the upstream stage broke its
// contract. A strict subset returns a violation in ModeStrict and a
// non-hermetic Report in ModeLenient.
func Check(group string, expected, observed []string, mode Mode) (Report, error) {
	want := make(map[string]struct{}, len(expected))
	for _, k := range expected {
		want[k] = struct{}{}
	}

	var unexpected []string
	got := make(map[string]struct{}, len(observed))
	for _, k := range observed {
		got[k] = struct{}{}
		if _, ok := want[k]; !ok {
			unexpected = append(unexpected, k)
		}
	}
	if len(unexpected) > 0 {
		sort.Strings(unexpected)
		return Report{}, &domain.HermeticityViolation{Group: group, Unexpected: unexpected}
	}

	var missing []string
	for _, k := range expected {
		if _, ok := got[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 {
		return Report{Hermetic: true}, nil
	}

	sort.Strings(missing)
	if mode == ModeStrict {
		return Report{}, &domain.HermeticityViolation{Group: group, Missing: missing}
	}
	return Report{Hermetic: false, Missing: missing}, nil
}
