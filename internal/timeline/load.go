package timeline

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Load is a resolved load for one exercise.
type Load struct {
	// Kg is nil for pure bodyweight work.
	Kg             *float64
	BodyweightPlus bool
}

// ResolveLoad turns a load spec into kilograms. Accepted forms are "",
// "bw", "bodyweight", "bw+10", "24", "24kg", "70%squat" and "70% of squat".
// Percentages refer to the effective training max of a major lift in the
// same definition.
func ResolveLoad(spec string, tms map[string]float64, plateKg float64) (Load, error) {
	s := strings.ToLower(strings.TrimSpace(spec))
	switch s {
	case "", "bw", "bodyweight":
		return Load{}, nil
	}

	if rest, ok := strings.CutPrefix(s, "bw+"); ok {
		kg, err := parseKg(rest)
		if err != nil {
			return Load{}, fmt.Errorf("%w %q", ErrUnknownLoad, spec)
		}
		return Load{Kg: &kg, BodyweightPlus: true}, nil
	}

	if pct, lift, ok := strings.Cut(s, "%"); ok {
		p, err := strconv.ParseFloat(strings.TrimSpace(pct), 64)
		if err != nil || p <= 0 {
			return Load{}, fmt.Errorf("%w %q: bad percentage", ErrUnknownLoad, spec)
		}
		lift = strings.TrimSpace(lift)
		lift = strings.TrimSpace(strings.TrimPrefix(lift, "of "))
		tm, found := tms[lift]
		if !found {
			return Load{}, fmt.Errorf("%w %q: no major lift named %q", ErrUnknownLoad, spec, lift)
		}
		kg := roundTo(p/100*tm, plateKg)
		return Load{Kg: &kg}, nil
	}

	kg, err := parseKg(s)
	if err != nil {
		return Load{}, fmt.Errorf("%w %q", ErrUnknownLoad, spec)
	}
	return Load{Kg: &kg}, nil
}

func parseKg(s string) (float64, error) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "kg"))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("negative load %v", v)
	}
	return v, nil
}

// roundTo rounds v to the nearest multiple of inc.
func roundTo(v, inc float64) float64 {
	if inc <= 0 {
		return v
	}
	return math.Round(v/inc) * inc
}

func formatKg(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + " kg"
}

func (l Load) describe() string {
	switch {
	case l.Kg == nil:
		return "bodyweight"
	case l.BodyweightPlus:
		return "bodyweight plus " + formatKg(*l.Kg)
	default:
		return formatKg(*l.Kg)
	}
}
