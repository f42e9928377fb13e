package alpha

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/claude/repcoach/internal/models"
)

var (
	// sessionHeaderRe matches: "Session Name";"2026-02-19 4:54 h";"1:02 hr"
	sessionHeaderRe = regexp.MustCompile(`^"(.+)";"(\d{4}-\d{2}-\d{2}\s+\d+:\d+)\s+h";"(.+)"$`)

	// exerciseHeaderRe matches: "1. Exercise Name · Equipment · 8 reps[· modifiers]"[;"warmup info"]
	exerciseHeaderRe = regexp.MustCompile(`^"(\d+)\.\s+(.+?)(?:\s+·\s+(\S.*?))?\s+·\s+(\d+)\s+reps(.*?)"(?:;"(.+)")?$`)

	// setDataRe matches: 1;115;8;1
	setDataRe = regexp.MustCompile(`^(\d+);(.+);(\d+);(.+)$`)

	// warmupRe matches: WU1 · 37,5 kg · 9 reps
	warmupRe = regexp.MustCompile(`WU(\d+)\s+·\s+(.+?)\s+kg\s+·\s+(\d+)\s+reps`)

	// columnHeaderRe matches: #;KG;REPS;RIR
	columnHeaderRe = regexp.MustCompile(`^#;KG;REPS;RIR$`)
)

// Parse reads an Alpha Progression CSV export and returns parsed sessions.
// Unrecognised lines (notes, app metadata) are ignored.
func Parse(r io.Reader) ([]models.AlphaSession, error) {
	var st exportState
	scanner := bufio.NewScanner(r)
	for n := 1; scanner.Scan(); n++ {
		if err := st.line(strings.TrimSpace(scanner.Text())); err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading export: %w", err)
	}
	st.closeSession()
	return st.sessions, nil
}

// exportState accumulates sessions while scanning. A blank line or a new
// session header closes the open session.
type exportState struct {
	sessions []models.AlphaSession
	session  *models.AlphaSession
	exercise *models.AlphaExercise
}

func (st *exportState) line(line string) error {
	switch {
	case line == "":
		st.closeSession()
	case columnHeaderRe.MatchString(line):
	case sessionHeaderRe.MatchString(line):
		return st.openSession(sessionHeaderRe.FindStringSubmatch(line))
	case exerciseHeaderRe.MatchString(line):
		return st.openExercise(exerciseHeaderRe.FindStringSubmatch(line), line)
	case setDataRe.MatchString(line):
		return st.addSet(setDataRe.FindStringSubmatch(line), line)
	}
	return nil
}

func (st *exportState) openSession(m []string) error {
	st.closeSession()
	date, err := parseSessionDate(m[2])
	if err != nil {
		return fmt.Errorf("parsing session date %q: %w", m[2], err)
	}
	st.session = &models.AlphaSession{Name: m[1], Date: date, Duration: m[3]}
	return nil
}

// openExercise handles m[2] = name, m[3] = optional equipment, m[4] = target
// reps and m[6] = the optional warmup column.
func (st *exportState) openExercise(m []string, line string) error {
	if st.session == nil {
		return fmt.Errorf("exercise without session: %q", line)
	}
	st.closeExercise()
	num, _ := strconv.Atoi(m[1])
	targetReps, _ := strconv.Atoi(m[4])
	st.exercise = &models.AlphaExercise{
		Number:     num,
		Name:       strings.TrimSpace(m[2]),
		Equipment:  strings.TrimSpace(m[3]),
		TargetReps: targetReps,
	}
	if m[6] != "" {
		st.exercise.Sets = append(st.exercise.Sets, parseWarmups(m[6])...)
	}
	return nil
}

func (st *exportState) addSet(m []string, line string) error {
	if st.exercise == nil {
		return fmt.Errorf("set data without exercise: %q", line)
	}
	setNum, _ := strconv.Atoi(m[1])
	weight, isBW := parseWeight(m[2])
	reps, _ := strconv.Atoi(m[3])
	st.exercise.Sets = append(st.exercise.Sets, models.AlphaSet{
		Number:           setNum,
		WeightKg:         weight,
		IsBodyweightPlus: isBW,
		Reps:             reps,
		RIR:              parseEuropeanFloat(m[4]),
	})
	return nil
}

func (st *exportState) closeExercise() {
	if st.session != nil && st.exercise != nil {
		st.session.Exercises = append(st.session.Exercises, *st.exercise)
	}
	st.exercise = nil
}

func (st *exportState) closeSession() {
	st.closeExercise()
	if st.session != nil {
		st.sessions = append(st.sessions, *st.session)
	}
	st.session = nil
}

// parseSessionDate parses "2026-02-19 4:54" into a time.Time.
func parseSessionDate(s string) (time.Time, error) {
	// Try both formats: "2026-02-19 4:54" and "2026-02-19 16:54"
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02 3:04"} {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse date %q", s)
}

// splitExerciseNameEquipment splits "Hack Squats · Machine" into name and equipment.
func splitExerciseNameEquipment(s string) (name, equipment string) {
	parts := strings.Split(s, " · ")
	if len(parts) >= 2 {
		return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[len(parts)-1])
	}
	return strings.TrimSpace(s), ""
}

// parseWarmups extracts warmup sets from the warmup info string.
// Example: "WU1 · 37,5 kg · 9 reps<br>WU2 · 72,5 kg · 7 reps"
func parseWarmups(s string) []models.AlphaSet {
	var sets []models.AlphaSet
	parts := strings.Split(s, "<br>")
	for _, part := range parts {
		m := warmupRe.FindStringSubmatch(part)
		if m == nil {
			continue
		}
		num, _ := strconv.Atoi(m[1])
		weight, isBW := parseWeight(m[2])
		reps, _ := strconv.Atoi(m[3])
		sets = append(sets, models.AlphaSet{
			Number:           num,
			WeightKg:         weight,
			IsBodyweightPlus: isBW,
			Reps:             reps,
			IsWarmup:         true,
		})
	}
	return sets
}

// parseWeight handles European decimals and bodyweight-plus notation.
// "+35" -> (35, true), "102,5" -> (102.5, false), "+0" -> (0, true)
func parseWeight(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "+") {
		w := parseEuropeanFloat(s[1:])
		return w, true
	}
	return parseEuropeanFloat(s), false
}

// parseEuropeanFloat converts a European decimal string to float64.
// "102,5" -> 102.5, "0,5" -> 0.5
func parseEuropeanFloat(s string) float64 {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", ".")
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
