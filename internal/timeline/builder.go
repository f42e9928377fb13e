// Package timeline turns workout definitions into the ordered step list a
// guided session runs through.
package timeline

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/tempo"
)

var (
	// ErrUnknownLoad is returned when a load spec cannot be resolved.
	ErrUnknownLoad = errors.New("unknown load specification")
	// ErrInvalidDefinition is returned for structurally unusable definitions.
	ErrInvalidDefinition = errors.New("invalid workout definition")
	// ErrInvalidStep is returned when a produced step fails validation.
	ErrInvalidStep = errors.New("invalid step")
)

// Visual intensity hints per step type.
const (
	intensitySetup      = 0.2
	intensityWarmup     = 0.5
	intensityWork       = 0.8
	intensityRest       = 0.1
	intensityTransition = 0.3
	intensitySummary    = 0.0
)

// unit is one repeatable block: an exercise with its warmups and sets.
type unit struct {
	name        string
	warmups     []plannedSet
	sets        []plannedSet
	rest        float64
	tempo       *tempo.Spec
	trainingMax float64
}

type plannedSet struct {
	reps  int
	load  Load
	amrap bool
}

// Build lays a definition out into steps: a setup step, then every unit's
// warmups and working sets separated by rests, a transition between units,
// and a terminal summary step of duration 0. It is pure; identical inputs
// yield identical timelines.
func Build(def models.WorkoutDefinition, settings models.Settings) ([]models.Step, error) {
	settings = settings.WithDefaults()

	units, err := plan(def, settings)
	if err != nil {
		return nil, err
	}

	b := &builder{settings: settings}
	b.setup(def.Name)
	for i, u := range units {
		b.unit(u)
		if i < len(units)-1 {
			b.transition(units[i+1].name)
		}
	}
	b.summary()

	for i := range b.steps {
		assignCueIDs(&b.steps[i])
		if err := b.steps[i].Validate(); err != nil {
			return nil, fmt.Errorf("%w: step %d: %w", ErrInvalidStep, i, err)
		}
	}
	return b.steps, nil
}

// plan resolves loads and tempos for every exercise in definition order.
func plan(def models.WorkoutDefinition, settings models.Settings) ([]unit, error) {
	bump := float64(settings.Progression.Cycle) * settings.Progression.IncrementKg
	tms := make(map[string]float64, len(def.Lifts))
	for _, l := range def.Lifts {
		if l.TrainingMaxKg <= 0 {
			return nil, fmt.Errorf("%w: lift %q has no training max", ErrInvalidDefinition, l.Name)
		}
		tms[strings.ToLower(strings.TrimSpace(l.Name))] = l.TrainingMaxKg + bump
	}

	var units []unit
	for _, l := range def.Lifts {
		u, err := planLift(l, tms[strings.ToLower(strings.TrimSpace(l.Name))], settings)
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}

	for _, g := range def.Accessories {
		for _, a := range g.Exercises {
			u, err := planAccessory(a, tms, settings)
			if err != nil {
				return nil, fmt.Errorf("accessory group %q: %w", g.Name, err)
			}
			units = append(units, u)
		}
	}

	for _, e := range def.Exercises {
		u, err := planEntry(e, settings)
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, nil
}

func planLift(l models.MajorLift, tm float64, settings models.Settings) (unit, error) {
	if len(l.Sets) == 0 {
		return unit{}, fmt.Errorf("%w: lift %q has no sets", ErrInvalidDefinition, l.Name)
	}
	u := unit{name: l.Name, rest: settings.RestSeconds, trainingMax: tm}

	for _, r := range l.Warmup {
		if r.Percent <= 0 || r.Reps <= 0 {
			return unit{}, fmt.Errorf("%w: lift %q has an empty warmup ramp step", ErrInvalidDefinition, l.Name)
		}
		kg := roundTo(r.Percent*tm, settings.PlateIncrementKg)
		u.warmups = append(u.warmups, plannedSet{reps: r.Reps, load: Load{Kg: &kg}})
	}
	for _, s := range l.Sets {
		if s.Percent <= 0 || s.Reps <= 0 {
			return unit{}, fmt.Errorf("%w: lift %q has an empty set", ErrInvalidDefinition, l.Name)
		}
		kg := roundTo(s.Percent*tm, settings.PlateIncrementKg)
		u.sets = append(u.sets, plannedSet{reps: s.Reps, load: Load{Kg: &kg}, amrap: s.AMRAP})
	}

	spec, err := parseTempo(l.Name, l.Tempo, settings)
	if err != nil {
		return unit{}, err
	}
	u.tempo = spec
	return u, nil
}

func planAccessory(a models.Accessory, tms map[string]float64, settings models.Settings) (unit, error) {
	if a.Sets <= 0 || a.Reps <= 0 {
		return unit{}, fmt.Errorf("%w: exercise %q needs sets and reps", ErrInvalidDefinition, a.Name)
	}
	load, err := ResolveLoad(a.Load, tms, settings.PlateIncrementKg)
	if err != nil {
		return unit{}, fmt.Errorf("exercise %q: %w", a.Name, err)
	}
	spec, err := parseTempo(a.Name, a.Tempo, settings)
	if err != nil {
		return unit{}, err
	}

	u := unit{name: a.Name, rest: settings.AccessoryRestSeconds, tempo: spec}
	for range a.Sets {
		u.sets = append(u.sets, plannedSet{reps: a.Reps, load: load})
	}
	return u, nil
}

func planEntry(e models.ExerciseEntry, settings models.Settings) (unit, error) {
	if e.Sets <= 0 || e.Reps <= 0 {
		return unit{}, fmt.Errorf("%w: exercise %q needs sets and reps", ErrInvalidDefinition, e.Name)
	}
	if e.LoadKg != nil && *e.LoadKg < 0 {
		return unit{}, fmt.Errorf("exercise %q: %w: negative load", e.Name, ErrUnknownLoad)
	}
	spec, err := parseTempo(e.Name, e.Tempo, settings)
	if err != nil {
		return unit{}, err
	}

	u := unit{name: e.Name, rest: settings.AccessoryRestSeconds, tempo: spec}
	if e.RestSeconds > 0 {
		u.rest = e.RestSeconds
	}
	for _, w := range e.Warmups {
		if w.Reps <= 0 {
			return unit{}, fmt.Errorf("%w: exercise %q has an empty warmup", ErrInvalidDefinition, e.Name)
		}
		kg := w.LoadKg
		u.warmups = append(u.warmups, plannedSet{reps: w.Reps, load: Load{Kg: &kg}})
	}
	var load Load
	if e.LoadKg != nil {
		kg := *e.LoadKg
		load.Kg = &kg
	}
	for range e.Sets {
		u.sets = append(u.sets, plannedSet{reps: e.Reps, load: load})
	}
	return u, nil
}

func parseTempo(name, s string, settings models.Settings) (*tempo.Spec, error) {
	if s == "" || !settings.Tempo() {
		return nil, nil
	}
	spec, err := tempo.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("exercise %q: %w", name, err)
	}
	return &spec, nil
}

type builder struct {
	settings models.Settings
	steps    []models.Step
}

func (b *builder) add(s models.Step) {
	sort.SliceStable(s.VoiceCues, func(i, j int) bool {
		return s.VoiceCues[i].Offset < s.VoiceCues[j].Offset
	})
	b.steps = append(b.steps, s)
}

func (b *builder) setup(name string) {
	text := "Get ready"
	if name != "" {
		text += ": " + name
	}
	d := b.settings.SetupSeconds
	cues := []models.VoiceCue{{Text: text}}
	if b.settings.Countdown() {
		cues = append(cues, countdown(d, false)...)
	}
	b.add(models.Step{
		Type:            models.StepSetup,
		Duration:        d,
		VoiceCues:       cues,
		VisualIntensity: intensitySetup,
	})
}

func (b *builder) unit(u unit) {
	for i, w := range u.warmups {
		b.add(models.Step{
			Type:     models.StepWarmup,
			Duration: float64(w.reps) * b.settings.SecondsPerRep,
			VoiceCues: []models.VoiceCue{{
				Text: fmt.Sprintf("Warm-up %d of %d: %s, %d reps at %s", i+1, len(u.warmups), u.name, w.reps, w.load.describe()),
			}},
			VisualIntensity: intensityWarmup,
			SetNumber:       i + 1,
			TotalSets:       len(u.warmups),
			Load:            copyKg(w.load.Kg),
			ExerciseName:    u.name,
		})
		b.rest(b.settings.WarmupRestSeconds, u.name)
	}

	for i, s := range u.sets {
		b.add(b.workStep(u, s, i+1))
		if i < len(u.sets)-1 {
			b.rest(u.rest, u.name)
		}
	}
}

func (b *builder) workStep(u unit, s plannedSet, n int) models.Step {
	reps := strconv.Itoa(s.reps) + " reps"
	if s.amrap {
		reps = "as many reps as possible, at least " + strconv.Itoa(s.reps)
	}
	step := models.Step{
		Type:     models.StepWork,
		Duration: float64(s.reps) * b.settings.SecondsPerRep,
		VoiceCues: []models.VoiceCue{{
			Text: fmt.Sprintf("Set %d of %d: %s, %s at %s", n, len(u.sets), u.name, reps, s.load.describe()),
		}},
		VisualIntensity: workIntensity(s.load, u.trainingMax),
		SetNumber:       n,
		TotalSets:       len(u.sets),
		Load:            copyKg(s.load.Kg),
		ExerciseName:    u.name,
	}
	if u.tempo != nil && !s.amrap {
		step.TempoPhases = u.tempo.Phases()
		step.TargetReps = s.reps
		step.Duration = u.tempo.CycleSeconds() * float64(s.reps)
	}
	return step
}

func copyKg(kg *float64) *float64 {
	if kg == nil {
		return nil
	}
	v := *kg
	return &v
}

func workIntensity(l Load, tm float64) float64 {
	if tm <= 0 || l.Kg == nil {
		return intensityWork
	}
	return math.Min(1, math.Max(0.6, *l.Kg/tm))
}

func (b *builder) rest(d float64, next string) {
	cues := []models.VoiceCue{{Text: fmt.Sprintf("Rest %s. Next: %s", formatSeconds(d), next)}}
	if b.settings.Countdown() {
		cues = append(cues, countdown(d, true)...)
	}
	b.add(models.Step{
		Type:            models.StepRest,
		Duration:        d,
		VoiceCues:       cues,
		VisualIntensity: intensityRest,
		ExerciseName:    next,
	})
}

func (b *builder) transition(next string) {
	d := b.settings.TransitionSeconds
	cues := []models.VoiceCue{{Text: "Next up: " + next}}
	if b.settings.Countdown() {
		cues = append(cues, countdown(d, true)...)
	}
	b.add(models.Step{
		Type:            models.StepTransition,
		Duration:        d,
		VoiceCues:       cues,
		VisualIntensity: intensityTransition,
		ExerciseName:    next,
	})
}

func (b *builder) summary() {
	b.add(models.Step{
		Type:            models.StepSummary,
		VoiceCues:       []models.VoiceCue{{Text: "Workout complete"}},
		VisualIntensity: intensitySummary,
	})
}

// countdown returns the cues announcing the end of a timed step: 30 and 15
// seconds left (when long enough) and a spoken 5..1.
func countdown(d float64, long bool) []models.VoiceCue {
	var cues []models.VoiceCue
	if long {
		for _, left := range []float64{30, 15} {
			if d-left > 0 {
				cues = append(cues, models.VoiceCue{Text: formatSeconds(left), Offset: d - left})
			}
		}
	}
	for left := 5; left >= 1; left-- {
		if off := d - float64(left); off > 0 {
			cues = append(cues, models.VoiceCue{Text: strconv.Itoa(left), Offset: off})
		}
	}
	return cues
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', -1, 64) + " seconds"
}

// assignCueIDs gives every cue a stable identifier derived from its content
// so that firing state survives reordering of the cue list.
func assignCueIDs(s *models.Step) {
	seen := make(map[string]int, len(s.VoiceCues))
	for i := range s.VoiceCues {
		c := &s.VoiceCues[i]
		if c.ID == "" {
			c.ID = slug(c.Text) + "@" + strconv.FormatFloat(c.Offset, 'f', -1, 64)
		}
		seen[c.ID]++
		if n := seen[c.ID]; n > 1 {
			c.ID += "#" + strconv.Itoa(n)
		}
	}
}

func slug(s string) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
			dash = false
		case !dash && sb.Len() > 0:
			sb.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(sb.String(), "-")
}

// TotalSeconds is the planned length of a timeline. The terminal summary
// step contributes nothing.
func TotalSeconds(steps []models.Step) float64 {
	var total float64
	for _, s := range steps {
		total += s.Duration
	}
	return total
}
