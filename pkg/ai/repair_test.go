package ai

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRepairJSONDirectParse(t *testing.T) {
	raw := `{"student_name":"Asha","answers":[]}`
	parsed, err := RepairJSON(raw)
	require.NoError(t, err)
	require.JSONEq(t, raw, string(parsed))
}

func TestRepairJSONStripsBOM(t *testing.T) {
	raw := "\uFEFF" + `{"student_name":"Asha","answers":[]}`
	parsed, err := RepairJSON(raw)
	require.NoError(t, err)
	require.JSONEq(t, `{"student_name":"Asha","answers":[]}`, string(parsed))
}

func TestRepairJSONExtractsObjectFromProse(t *testing.T) {
	raw := "Here is the evaluation you asked for:\n```json\n" +
		`{"student_name":"Asha","answers":[{"question_no":1}]}` +
		"\n```\nLet me know if you need anything else."

	parsed, err := RepairJSON(raw)
	require.NoError(t, err)

	var result map[string]any
	require.NoError(t, json.Unmarshal(parsed, &result))
	require.Equal(t, "Asha", result["student_name"])
}

func TestRepairJSONTruncatedTail(t *testing.T) {
	// Output cut off by a token limit right after a complete object.
	raw := `{"student_name":"Asha","answers":[{"question_no":1,"score":[2,2]}]}trailing garbage without structure`

	parsed, err := RepairJSON(raw)
	require.NoError(t, err)

	var result struct {
		Answers []map[string]any `json:"answers"`
	}
	require.NoError(t, json.Unmarshal(parsed, &result))
	require.Len(t, result.Answers, 1)
}

func TestRepairJSONSalvagesCompleteAnswers(t *testing.T) {
	// Truncated mid-way through the third answer object.
	raw := `{"student_name":"Asha","total_questions_detected":3,"answers":[` +
		`{"question_no":1,"score":[2,2],"remarks":"good"},` +
		`{"question_no":2,"score":[0,3],"remarks":"missed the {key} point"},` +
		`{"question_no":3,"score":[1,`

	parsed, err := RepairJSON(raw)
	require.NoError(t, err)

	var result struct {
		StudentName string           `json:"student_name"`
		Answers     []map[string]any `json:"answers"`
	}
	require.NoError(t, json.Unmarshal(parsed, &result))
	require.Equal(t, "Asha", result.StudentName)
	require.Len(t, result.Answers, 2, "incomplete trailing object is dropped")
	require.Equal(t, "missed the {key} point", result.Answers[1]["remarks"])
}

func TestRepairJSONExhaustedLadder(t *testing.T) {
	raw := strings.Repeat("not json at all ", 100)

	_, err := RepairJSON(raw)
	require.ErrorIs(t, err, ErrUnrepairableJSON)

	var malformed *MalformedResponseError
	require.ErrorAs(t, err, &malformed)
	require.LessOrEqual(t, len(malformed.RawExcerpt), rawExcerptLimit+3)
}

func TestCompleteObjectsStopsAtArrayClose(t *testing.T) {
	body := `{"a":1},{"b":"}"}],"overall_performance":{"x":1}`
	objects := completeObjects(body)
	require.Equal(t, []string{`{"a":1}`, `{"b":"}"}`}, objects)
}

func TestMatchBraceHandlesEscapedQuotes(t *testing.T) {
	s := `{"remarks":"she wrote \"done\" {here}"}`
	require.Equal(t, len(s)-1, matchBrace(s, 0))
}
