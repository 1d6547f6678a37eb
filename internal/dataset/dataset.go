// Package dataset loads persona and telemetry batches from files.
//
// Three encodings are accepted, chosen by file extension: a JSON array
// (.json), one JSON object per line (.jsonl, .ndjson) and a YAML sequence
// (.yaml, .yml). Malformed JSONL lines are skipped and reported in
// LoadErrors so one bad record does not discard a large export.
package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nvandessel/viralsim/internal/models"
	"github.com/nvandessel/viralsim/internal/simulation"
)

// Format is a file encoding.
type Format string

const (
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatYAML  Format = "yaml"
)

// DetectFormat returns the format implied by path's extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".jsonl", ".ndjson":
		return FormatJSONL, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported dataset extension %q (valid: .json, .jsonl, .ndjson, .yaml, .yml)", filepath.Ext(path))
	}
}

// LoadError is a JSONL line that could not be decoded.
type LoadError struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Content string `json:"content"`
	Error   string `json:"error"`
}

// Dataset is a persona batch with its telemetry.
type Dataset struct {
	Personas   []models.PersonaProfile `json:"personas" yaml:"personas"`
	Events     []models.TelemetryEvent `json:"events" yaml:"events"`
	LoadErrors []LoadError             `json:"load_errors,omitempty" yaml:"-"`
}

// Load reads personas from personasPath and, when eventsPath is not empty,
// telemetry from eventsPath.
func Load(personasPath, eventsPath string) (*Dataset, error) {
	ds := &Dataset{}

	personas, errs, err := LoadPersonas(personasPath)
	if err != nil {
		return nil, err
	}
	ds.Personas = personas
	ds.LoadErrors = append(ds.LoadErrors, errs...)

	if eventsPath != "" {
		events, errs, err := LoadEvents(eventsPath)
		if err != nil {
			return nil, err
		}
		ds.Events = events
		ds.LoadErrors = append(ds.LoadErrors, errs...)
	}
	return ds, nil
}

// LoadPersonas reads persona profiles from path.
func LoadPersonas(path string) ([]models.PersonaProfile, []LoadError, error) {
	return loadFile[models.PersonaProfile](path)
}

// LoadEvents reads telemetry events from path.
func LoadEvents(path string) ([]models.TelemetryEvent, []LoadError, error) {
	return loadFile[models.TelemetryEvent](path)
}

func loadFile[T any](path string) ([]T, []LoadError, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	items, loadErrs, err := Decode[T](f, format, path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return items, loadErrs, nil
}

// Decode reads records of type T from r in the given format. name labels
// LoadErrors.
func Decode[T any](r io.Reader, format Format, name string) ([]T, []LoadError, error) {
	switch format {
	case FormatJSON:
		var items []T
		if err := json.NewDecoder(r).Decode(&items); err != nil {
			if err == io.EOF {
				return []T{}, nil, nil
			}
			return nil, nil, err
		}
		return items, nil, nil

	case FormatYAML:
		var items []T
		if err := yaml.NewDecoder(r).Decode(&items); err != nil {
			if err == io.EOF {
				return []T{}, nil, nil
			}
			return nil, nil, err
		}
		return items, nil, nil

	case FormatJSONL:
		items := []T{}
		var loadErrs []LoadError
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		lineNum := 0
		for scanner.Scan() {
			lineNum++
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var item T
			if err := json.Unmarshal([]byte(line), &item); err != nil {
				loadErrs = append(loadErrs, LoadError{
					File:    name,
					Line:    lineNum,
					Content: truncateForError(line),
					Error:   err.Error(),
				})
				continue
			}
			items = append(items, item)
		}
		return items, loadErrs, scanner.Err()

	default:
		return nil, nil, fmt.Errorf("unsupported format: %q", format)
	}
}

// Batches splits the dataset into n batches of contiguous personas, each
// carrying only its own personas' events. Personas are deduplicated by id
// first so no id appears in two batches. n is clamped to [1, personas].
func (ds *Dataset) Batches(n int) []simulation.Batch {
	seen := make(map[string]bool, len(ds.Personas))
	personas := make([]models.PersonaProfile, 0, len(ds.Personas))
	for _, p := range ds.Personas {
		if p.ID == "" || seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		personas = append(personas, p)
	}
	if len(personas) == 0 {
		return nil
	}
	n = max(1, min(n, len(personas)))

	byPersona := make(map[string][]models.TelemetryEvent)
	for _, e := range ds.Events {
		byPersona[e.PersonaID] = append(byPersona[e.PersonaID], e)
	}

	batches := make([]simulation.Batch, n)
	size := (len(personas) + n - 1) / n
	for i, p := range personas {
		b := &batches[i/size]
		b.Personas = append(b.Personas, p)
		b.Events = append(b.Events, byPersona[p.ID]...)
	}

	// Ceiling division can leave trailing batches empty.
	out := batches[:0]
	for _, b := range batches {
		if len(b.Personas) > 0 {
			out = append(out, b)
		}
	}
	return out
}

// truncateForError shortens a line for inclusion in a LoadError.
func truncateForError(s string) string {
	const maxLen = 200
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
