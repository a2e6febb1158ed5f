package models

import (
	"encoding/json"
	"fmt"
)

const AnalysisVersion = 1

// Analysis is the structured payload stored alongside a message.
// Known keys are typed; anything else round-trips through Extra.
type Analysis struct {
	Version       int                        `json:"-"`
	Corrections   []Correction               `json:"-"`
	Score         *int                       `json:"-"`
	LearningNotes string                     `json:"-"`
	Extra         map[string]json.RawMessage `json:"-"`
}

var knownAnalysisKeys = map[string]struct{}{
	"version":        {},
	"corrections":    {},
	"errors":         {},
	"score":          {},
	"learning_notes": {},
}

func (a Analysis) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(a.Extra)+4)
	for k, v := range a.Extra {
		if _, known := knownAnalysisKeys[k]; known {
			continue
		}
		out[k] = v
	}

	version := a.Version
	if version == 0 {
		version = AnalysisVersion
	}
	out["version"] = version

	corrections := a.Corrections
	if corrections == nil {
		corrections = []Correction{}
	}
	out["corrections"] = corrections

	if a.Score != nil {
		out["score"] = *a.Score
	}
	if a.LearningNotes != "" {
		out["learning_notes"] = a.LearningNotes
	}

	return json.Marshal(out)
}

func (a *Analysis) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*a = Analysis{}

	if v, ok := raw["version"]; ok {
		if err := json.Unmarshal(v, &a.Version); err != nil {
			return fmt.Errorf("decode analysis version: %w", err)
		}
	}

	// "errors" is the legacy name of the corrections list.
	for _, key := range []string{"corrections", "errors"} {
		v, ok := raw[key]
		if !ok || a.Corrections != nil {
			continue
		}
		if err := json.Unmarshal(v, &a.Corrections); err != nil {
			return fmt.Errorf("decode analysis %s: %w", key, err)
		}
	}

	if v, ok := raw["score"]; ok && string(v) != "null" {
		var score float64
		if err := json.Unmarshal(v, &score); err != nil {
			return fmt.Errorf("decode analysis score: %w", err)
		}
		s := int(score)
		a.Score = &s
	}

	if v, ok := raw["learning_notes"]; ok {
		if err := json.Unmarshal(v, &a.LearningNotes); err != nil {
			return fmt.Errorf("decode analysis learning_notes: %w", err)
		}
	}

	for k, v := range raw {
		if _, known := knownAnalysisKeys[k]; known {
			continue
		}
		if a.Extra == nil {
			a.Extra = make(map[string]json.RawMessage)
		}
		a.Extra[k] = v
	}

	return nil
}

// ScoreOr returns the score if present, def otherwise.
func (a *Analysis) ScoreOr(def int) int {
	if a == nil || a.Score == nil {
		return def
	}
	return *a.Score
}

// DecodeAnalysis never fails: a missing or malformed blob yields an empty Analysis.
func DecodeAnalysis(blob *string) Analysis {
	if blob == nil || *blob == "" {
		return Analysis{}
	}

	var a Analysis
	if err := json.Unmarshal([]byte(*blob), &a); err != nil {
		return Analysis{}
	}
	return a
}
