// Package tempo expands lifting tempo notation into phase sequences and
// provides the phase cycle used to time tempo-driven steps.
package tempo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/claude/repcoach/internal/models"
)

// ErrInvalidTempo is returned for tempo strings that cannot be parsed.
var ErrInvalidTempo = errors.New("invalid tempo")

// ExplosiveSeconds is the duration assigned to an "X" concentric.
const ExplosiveSeconds = 1.0

// Spec is a parsed tempo: eccentric, bottom pause, concentric, top pause.
type Spec struct {
	Eccentric  float64
	Bottom     float64
	Concentric float64
	Top        float64
}

// Parse reads tempo notation such as "3-1-1", "3-1-X-0", "31X0" or "2.5/0/1".
// Three-part tempos have no top pause.
func Parse(s string) (Spec, error) {
	parts, err := split(strings.TrimSpace(s))
	if err != nil {
		return Spec{}, err
	}

	vals := make([]float64, 4)
	for i, p := range parts {
		if strings.EqualFold(p, "x") {
			if i != 2 {
				return Spec{}, fmt.Errorf("%w %q: X is only valid for the concentric", ErrInvalidTempo, s)
			}
			vals[i] = ExplosiveSeconds
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return Spec{}, fmt.Errorf("%w %q: bad value %q", ErrInvalidTempo, s, p)
		}
		vals[i] = v
	}

	spec := Spec{Eccentric: vals[0], Bottom: vals[1], Concentric: vals[2], Top: vals[3]}
	if spec.CycleSeconds() <= 0 {
		return Spec{}, fmt.Errorf("%w %q: all phases are zero", ErrInvalidTempo, s)
	}
	return spec, nil
}

func split(s string) ([]string, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidTempo)
	}
	var parts []string
	if strings.ContainsAny(s, "-/:") {
		parts = strings.FieldsFunc(s, func(r rune) bool {
			return r == '-' || r == '/' || r == ':'
		})
	} else {
		for _, r := range s {
			parts = append(parts, string(r))
		}
	}
	if len(parts) != 3 && len(parts) != 4 {
		return nil, fmt.Errorf("%w %q: want 3 or 4 parts, got %d", ErrInvalidTempo, s, len(parts))
	}
	return parts, nil
}

// CycleSeconds is the length of one repetition.
func (s Spec) CycleSeconds() float64 {
	return s.Eccentric + s.Bottom + s.Concentric + s.Top
}

// Phases returns the canonical phase sequence for one repetition. Pauses of
// zero length are dropped; movement phases are always present.
func (s Spec) Phases() []models.TempoPhase {
	phases := []models.TempoPhase{{Kind: models.PhaseEccentric, Duration: s.Eccentric}}
	if s.Bottom > 0 {
		phases = append(phases, models.TempoPhase{Kind: models.PhaseHold, Duration: s.Bottom})
	}
	phases = append(phases, models.TempoPhase{Kind: models.PhaseConcentric, Duration: s.Concentric})
	if s.Top > 0 {
		phases = append(phases, models.TempoPhase{Kind: models.PhaseHold, Duration: s.Top})
	}
	return phases
}

// String renders the spec in dash notation.
func (s Spec) String() string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return f(s.Eccentric) + "-" + f(s.Bottom) + "-" + f(s.Concentric) + "-" + f(s.Top)
}

// CycleSecondsOf sums a phase list.
func CycleSecondsOf(phases []models.TempoPhase) float64 {
	var total float64
	for _, p := range phases {
		total += p.Duration
	}
	return total
}
