package tempo

import (
	"errors"
	"testing"

	"github.com/claude/repcoach/internal/models"
	"github.com/google/go-cmp/cmp"
)

// TestParse verifies the accepted tempo notations.
func TestParse(t *testing.T) {
	cases := []struct {
		input string
		want  Spec
	}{
		{"3-1-1", Spec{Eccentric: 3, Bottom: 1, Concentric: 1}},
		{"3-1-1-0", Spec{Eccentric: 3, Bottom: 1, Concentric: 1}},
		{"31X0", Spec{Eccentric: 3, Bottom: 1, Concentric: ExplosiveSeconds}},
		{"2.5/0/1/2", Spec{Eccentric: 2.5, Concentric: 1, Top: 2}},
		{"4:0:1", Spec{Eccentric: 4, Concentric: 1}},
		{" 201 ", Spec{Eccentric: 2, Concentric: 1}},
		{"0-1-1", Spec{Bottom: 1, Concentric: 1}},
	}
	for _, tc := range cases {
		got, err := Parse(tc.input)
		if err != nil {
			t.Errorf("Parse(%q): unexpected error: %v", tc.input, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Parse(%q) = %+v, want %+v", tc.input, got, tc.want)
		}
	}
}

// TestParseInvalid verifies malformed tempos are rejected with ErrInvalidTempo.
func TestParseInvalid(t *testing.T) {
	for _, input := range []string{"", "3-1", "3-1-1-1-1", "a-1-1", "X-1-1", "NaN-1-1", "0-0-0", "12345"} {
		_, err := Parse(input)
		if !errors.Is(err, ErrInvalidTempo) {
			t.Errorf("Parse(%q) error = %v, want ErrInvalidTempo", input, err)
		}
	}
}

// TestPhases verifies the canonical order and that empty pauses are dropped.
func TestPhases(t *testing.T) {
	spec := Spec{Eccentric: 3, Bottom: 1, Concentric: 1, Top: 0}
	want := []models.TempoPhase{
		{Kind: models.PhaseEccentric, Duration: 3},
		{Kind: models.PhaseHold, Duration: 1},
		{Kind: models.PhaseConcentric, Duration: 1},
	}
	if diff := cmp.Diff(want, spec.Phases()); diff != "" {
		t.Errorf("Phases() mismatch (-want +got):\n%s", diff)
	}
	if got := spec.CycleSeconds(); got != 5 {
		t.Errorf("CycleSeconds() = %v, want 5", got)
	}
	if got := CycleSecondsOf(spec.Phases()); got != 5 {
		t.Errorf("CycleSecondsOf() = %v, want 5", got)
	}
	if got := spec.String(); got != "3-1-1-0" {
		t.Errorf("String() = %q, want %q", got, "3-1-1-0")
	}
}

func threePhase() []models.TempoPhase {
	return []models.TempoPhase{
		{Kind: models.PhaseEccentric, Duration: 2},
		{Kind: models.PhaseHold, Duration: 1},
		{Kind: models.PhaseConcentric, Duration: 1},
	}
}

// TestCycleCountsReps verifies a 3-rep cycle completes exactly after three
// full phase cycles with every (phase, rep) pair announced once.
func TestCycleCountsReps(t *testing.T) {
	c := NewCycle(threePhase(), 3)
	seen := map[[2]int]int{}
	var transitions int
	completedAt := -1
	for i := 1; i <= 20; i++ {
		c.Accumulate(1)
		ts, done := c.Settle()
		for _, tr := range ts {
			transitions++
			if tr.Announce {
				seen[[2]int{tr.PhaseIndex, tr.Rep}]++
			}
		}
		if done {
			completedAt = i
			break
		}
	}
	if completedAt != 12 {
		t.Fatalf("completed at second %d, want 12", completedAt)
	}
	if transitions != 8 {
		t.Errorf("transitions = %d, want 8", transitions)
	}
	for k, n := range seen {
		if n != 1 {
			t.Errorf("pair %v announced %d times", k, n)
		}
	}
}

// TestCycleCarriesOverflow verifies one large delta is equivalent to many
// small ones.
func TestCycleCarriesOverflow(t *testing.T) {
	c := NewCycle(threePhase(), 3)
	c.Accumulate(5.5)
	ts, done := c.Settle()
	if done {
		t.Fatal("completed early")
	}
	if len(ts) != 3 {
		t.Fatalf("transitions = %d, want 3", len(ts))
	}
	if c.Rep() != 2 || c.Phase() != models.PhaseEccentric {
		t.Errorf("at rep %d phase %s, want rep 2 eccentric", c.Rep(), c.Phase())
	}
	if got := c.Progress(); got != 0.75 {
		t.Errorf("Progress() = %v, want 0.75", got)
	}

	c.Accumulate(6.5)
	_, done = c.Settle()
	if !done {
		t.Error("expected completion after 12s total")
	}
}

// TestCycleZeroLengthPhase verifies a zero-length phase is passed on the
// next settle regardless of dt.
func TestCycleZeroLengthPhase(t *testing.T) {
	phases := []models.TempoPhase{
		{Kind: models.PhaseEccentric, Duration: 0},
		{Kind: models.PhaseConcentric, Duration: 1},
	}
	c := NewCycle(phases, 2)
	ts, done := c.Settle()
	if done || len(ts) != 1 || ts[0].Phase != models.PhaseConcentric {
		t.Fatalf("Settle() = %+v, %v; want one transition to concentric", ts, done)
	}
	if got := c.Progress(); got != 0 {
		t.Errorf("Progress() = %v, want 0", got)
	}
}

// TestCycleAllZeroTerminates verifies a degenerate all-zero cycle cannot
// loop forever inside one settle.
func TestCycleAllZeroTerminates(t *testing.T) {
	phases := []models.TempoPhase{
		{Kind: models.PhaseEccentric, Duration: 0},
		{Kind: models.PhaseConcentric, Duration: 0},
	}
	c := NewCycle(phases, 1000)
	ts, done := c.Settle()
	if !done {
		t.Errorf("expected completion, got %d transitions", len(ts))
	}
	if len(ts) > c.MaxAdvances() {
		t.Errorf("transitions = %d exceed cap %d", len(ts), c.MaxAdvances())
	}
}

// TestCycleReset verifies Reset rewinds position and rep count.
func TestCycleReset(t *testing.T) {
	c := NewCycle(threePhase(), 3)
	c.Accumulate(7)
	c.Settle()
	c.Reset()
	if c.Rep() != 1 || c.PhaseIndex() != 0 || c.Progress() != 0 {
		t.Errorf("after Reset: rep=%d phase=%d progress=%v", c.Rep(), c.PhaseIndex(), c.Progress())
	}
}
