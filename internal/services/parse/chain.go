package parse

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Model responses are JSON-ish at best: sometimes clean, sometimes
// wrapped in prose or code fences. Extraction runs an ordered chain of
// strategies and stops at the first one that decodes; every failed tier
// keeps its reason so the caller can log why the text was hard to read.

// Tier names one extraction strategy.
type Tier string

const (
	TierStrict Tier = "strict"
	TierArray  Tier = "array"
	TierObject Tier = "object"
)

// Attempt records one failed tier and why it failed.
type Attempt struct {
	Tier   Tier
	Reason string
}

var (
	arrayRe  = regexp.MustCompile(`(?s)\[.*\]`)
	objectRe = regexp.MustCompile(`(?s)\{.*\}`)
)

// List decodes a JSON array from text into dest (a pointer to a slice).
// Chain: strict parse of the whole text (bare array, or an object whose
// wrapKey field holds the array) → widest [...] match → widest {...}
// match unwrapped via wrapKey.
func List(text, wrapKey string, dest interface{}) ([]Attempt, error) {
	text = strings.TrimSpace(text)
	var attempts []Attempt

	if reason := tryListStrict(text, wrapKey, dest); reason == "" {
		return attempts, nil
	} else {
		attempts = append(attempts, Attempt{Tier: TierStrict, Reason: reason})
	}

	if m := arrayRe.FindString(text); m != "" {
		if err := json.Unmarshal([]byte(m), dest); err == nil {
			return attempts, nil
		} else {
			attempts = append(attempts, Attempt{Tier: TierArray, Reason: err.Error()})
		}
	} else {
		attempts = append(attempts, Attempt{Tier: TierArray, Reason: "no array pattern"})
	}

	if m := objectRe.FindString(text); m != "" {
		if reason := unwrapList(m, wrapKey, dest); reason == "" {
			return attempts, nil
		} else {
			attempts = append(attempts, Attempt{Tier: TierObject, Reason: reason})
		}
	} else {
		attempts = append(attempts, Attempt{Tier: TierObject, Reason: "no object pattern"})
	}

	return attempts, fmt.Errorf("all %d parse tiers failed", len(attempts))
}

func tryListStrict(text, wrapKey string, dest interface{}) string {
	if err := json.Unmarshal([]byte(text), dest); err == nil {
		return ""
	}
	if reason := unwrapList(text, wrapKey, dest); reason == "" {
		return ""
	}
	return "not a bare array or wrapped object"
}

func unwrapList(text, wrapKey string, dest interface{}) string {
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &wrapper); err != nil {
		return err.Error()
	}
	raw, ok := wrapper[wrapKey]
	if !ok {
		return fmt.Sprintf("object has no %q field", wrapKey)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return err.Error()
	}
	return ""
}

// Object decodes a JSON object from text into dest (a pointer to a map
// or struct). Chain: strict parse → widest {...} match.
func Object(text string, dest interface{}) ([]Attempt, error) {
	text = strings.TrimSpace(text)
	var attempts []Attempt

	if err := json.Unmarshal([]byte(text), dest); err == nil {
		return attempts, nil
	} else {
		attempts = append(attempts, Attempt{Tier: TierStrict, Reason: err.Error()})
	}

	if m := objectRe.FindString(text); m != "" {
		if err := json.Unmarshal([]byte(m), dest); err == nil {
			return attempts, nil
		} else {
			attempts = append(attempts, Attempt{Tier: TierObject, Reason: err.Error()})
		}
	} else {
		attempts = append(attempts, Attempt{Tier: TierObject, Reason: "no object pattern"})
	}

	return attempts, fmt.Errorf("all %d parse tiers failed", len(attempts))
}
