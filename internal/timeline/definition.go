package timeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/claude/repcoach/internal/models"
	"gopkg.in/yaml.v3"
)

// Definition formats accepted by LoadDefinition.
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
)

// LoadDefinition decodes a workout definition. Unknown fields are rejected
// so typos in hand-written files surface immediately.
func LoadDefinition(r io.Reader, format string) (models.WorkoutDefinition, error) {
	var def models.WorkoutDefinition
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&def); err != nil {
			return def, fmt.Errorf("parsing workout JSON: %w", err)
		}
	case FormatYAML, "":
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&def); err != nil {
			return def, fmt.Errorf("parsing workout YAML: %w", err)
		}
	default:
		return def, fmt.Errorf("unsupported workout format %q", format)
	}
	return def, nil
}

// LoadDefinitionFile reads a definition from disk, choosing the format from
// the file extension.
func LoadDefinitionFile(path string) (models.WorkoutDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.WorkoutDefinition{}, fmt.Errorf("reading workout file: %w", err)
	}
	def, err := LoadDefinition(bytes.NewReader(data), FormatForPath(path))
	if err != nil {
		return def, err
	}
	if def.Name == "" {
		def.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return def, nil
}

// FormatForPath maps a file extension to a definition format.
func FormatForPath(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// FromAlphaSession converts a parsed Alpha Progression session into an
// exercise-list definition. The first working set sets the load; warmups
// keep their own loads.
func FromAlphaSession(s models.AlphaSession) models.WorkoutDefinition {
	def := models.WorkoutDefinition{Name: s.Name}
	for _, ex := range s.Exercises {
		working := ex.WorkingSets()
		if len(working) == 0 {
			continue
		}
		entry := models.ExerciseEntry{
			Name:      ex.Name,
			Equipment: ex.Equipment,
			Sets:      len(working),
			Reps:      ex.TargetReps,
		}
		if entry.Reps <= 0 {
			entry.Reps = working[0].Reps
		}
		if w := working[0].WeightKg; w > 0 {
			entry.LoadKg = &w
		}
		for _, wu := range ex.WarmupSets() {
			entry.Warmups = append(entry.Warmups, models.WarmupSet{LoadKg: wu.WeightKg, Reps: wu.Reps})
		}
		def.Exercises = append(def.Exercises, entry)
	}
	return def
}
