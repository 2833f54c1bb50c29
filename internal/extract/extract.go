// Package extract locates and parses grading payloads embedded in free-form
// model output.
package extract

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// fencedJSONRe matches a ```json fenced block and captures its object body.
var fencedJSONRe = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")

// Grade is a grading payload recovered from model output.
type Grade struct {
	// Score is nil when the payload carried a score that could not be
	// coerced to a number; ScoreInvalid distinguishes that case from a
	// payload that parsed cleanly.
	Score        *float64
	ScoreInvalid bool

	Comment    string
	Similarity *float64
}

// JSONValue locates a JSON payload inside arbitrary text and parses it.
// Attempts, in order: a ```json fenced block; the substring from the first
// '{' to the last '}'; the substring from the first '[' to the last ']'.
// Each stage that fails to parse falls through to the next; ok is false when
// every stage fails.
func JSONValue(text string) (any, bool) {
	for _, candidate := range candidates(text) {
		var v any
		if err := json.Unmarshal([]byte(strings.TrimSpace(candidate)), &v); err == nil {
			return v, true
		}
	}
	return nil, false
}

func candidates(text string) []string {
	var out []string

	if m := fencedJSONRe.FindStringSubmatch(text); m != nil {
		out = append(out, m[1])
	}

	if sub, ok := delimited(text, '{', '}'); ok {
		out = append(out, sub)
	}
	if sub, ok := delimited(text, '[', ']'); ok {
		out = append(out, sub)
	}

	return out
}

// delimited returns the substring from the first opening delimiter to the
// last closing delimiter.
func delimited(text string, opening, closing byte) (string, bool) {
	first := strings.IndexByte(text, opening)
	last := strings.LastIndexByte(text, closing)
	if first == -1 || last == -1 || last <= first {
		return "", false
	}
	return text[first : last+1], true
}

// ParseGrade extracts a score/comment payload from text. Returns nil when no
// JSON object with both a "score" and a "comment" key can be located; callers
// must treat nil as a parse failure, not as a zero score.
//
// A recovered score is clamped into [0, maxScore] when maxScore > 0. A score
// that is present but not coercible to a number yields Score == nil with
// ScoreInvalid set.
func ParseGrade(text string, maxScore float64) *Grade {
	v, ok := JSONValue(text)
	if !ok {
		return nil
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}

	rawScore, hasScore := obj["score"]
	rawComment, hasComment := obj["comment"]
	if !hasScore || !hasComment {
		return nil
	}

	grade := &Grade{Comment: coerceString(rawComment)}

	if score, ok := coerceNumber(rawScore); ok {
		if maxScore > 0 {
			score = min(max(0, score), maxScore)
		}
		grade.Score = &score
	} else {
		grade.ScoreInvalid = true
	}

	if raw, ok := obj["similarity"]; ok {
		if sim, ok := coerceNumber(raw); ok {
			grade.Similarity = &sim
		}
	}

	return grade
}

// coerceNumber converts JSON numbers and numeric strings to float64.
func coerceNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func coerceString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
