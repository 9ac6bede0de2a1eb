package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnrepairableJSON indicates every step of the repair ladder failed.
var ErrUnrepairableJSON = errors.New("response is not repairable JSON")

// MalformedResponseError carries a truncated copy of the raw model output for
// diagnostics when the repair ladder is exhausted.
type MalformedResponseError struct {
	RawExcerpt string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed model response: %s", e.RawExcerpt)
}

func (e *MalformedResponseError) Unwrap() error {
	return ErrUnrepairableJSON
}

const rawExcerptLimit = 500

// repairStep attempts one recovery strategy. It returns the candidate JSON
// bytes; the ladder verifies parseability before accepting the result.
type repairStep func(raw string) (string, bool)

// repairLadder is the ordered list of recovery strategies. Each step is a
// pure function so it can be unit tested in isolation; the first step whose
// output parses wins.
var repairLadder = []repairStep{
	passthrough,
	stripBOM,
	extractFirstObject,
	truncateToLastClose,
	salvageAnswersArray,
}

// RepairJSON parses raw model output, walking the repair ladder on failure.
func RepairJSON(raw string) (json.RawMessage, error) {
	for _, step := range repairLadder {
		candidate, ok := step(raw)
		if !ok {
			continue
		}
		if json.Valid([]byte(candidate)) {
			return json.RawMessage(candidate), nil
		}
	}

	excerpt := raw
	if len(excerpt) > rawExcerptLimit {
		excerpt = excerpt[:rawExcerptLimit] + "..."
	}
	return nil, &MalformedResponseError{RawExcerpt: excerpt}
}

func passthrough(raw string) (string, bool) {
	return strings.TrimSpace(raw), true
}

func stripBOM(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	stripped := strings.TrimPrefix(trimmed, "\uFEFF")
	if stripped == trimmed {
		return "", false
	}
	return stripped, true
}

// extractFirstObject pulls the first balanced {...} span out of surrounding
// prose (markdown fences, apologies, explanations).
func extractFirstObject(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return "", false
	}

	start := strings.IndexByte(trimmed, '{')
	if start < 0 {
		return "", false
	}

	end := matchBrace(trimmed, start)
	if end < 0 {
		// No balanced close; hand the tail to the truncation step.
		return trimmed[start:], true
	}

	return trimmed[start : end+1], true
}

// truncateToLastClose handles output cut off by a token limit: it keeps
// everything up to the last top-level closing brace.
func truncateToLastClose(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	start := strings.IndexByte(trimmed, '{')
	if start < 0 {
		return "", false
	}

	last := strings.LastIndexByte(trimmed, '}')
	if last <= start {
		return "", false
	}

	return trimmed[start : last+1], true
}

// salvageAnswersArray keeps only the syntactically complete objects inside
// the "answers" array and rebuilds the envelope around them. Fields that
// appeared after the truncation point are lost; the orchestrator fills them
// with defaults during validation.
func salvageAnswersArray(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)

	keyIdx := strings.Index(trimmed, `"answers"`)
	if keyIdx < 0 {
		return "", false
	}

	arrStart := strings.IndexByte(trimmed[keyIdx:], '[')
	if arrStart < 0 {
		return "", false
	}
	arrStart += keyIdx

	objects := completeObjects(trimmed[arrStart+1:])
	if len(objects) == 0 {
		return "", false
	}

	envelope := strings.TrimSpace(trimmed[:arrStart])
	if !strings.HasPrefix(envelope, "{") {
		start := strings.IndexByte(envelope, '{')
		if start < 0 {
			return "", false
		}
		envelope = envelope[start:]
	}

	return envelope + "[" + strings.Join(objects, ",") + "]}", true
}

// completeObjects scans an array body and returns every balanced top-level
// object found before the input runs out.
func completeObjects(body string) []string {
	var objects []string
	depth := 0
	inString := false
	escaped := false
	start := -1

	for i := 0; i < len(body); i++ {
		ch := body[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			depth--
			if depth == 0 && start >= 0 {
				objects = append(objects, body[start:i+1])
				start = -1
			}
		case ']':
			if depth == 0 {
				return objects
			}
		}
	}

	return objects
}

// matchBrace returns the index of the brace closing the one at start, or -1.
func matchBrace(s string, start int) int {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		ch := s[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}

	return -1
}
