package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vidya-labs/vidya-go-api/internal/models"
	"github.com/vidya-labs/vidya-go-api/pkg/ai"
)

type fakeChat struct {
	countResponse string
	countErr      error
	evalResponses []string
	evalErrs      []error
	evalPrompts   []string
	evalCalls     int
}

func (f *fakeChat) Complete(_ context.Context, _, user string, format ai.ResponseFormat) (string, error) {
	if format == ai.FormatText {
		return f.countResponse, f.countErr
	}

	f.evalPrompts = append(f.evalPrompts, user)
	i := f.evalCalls
	f.evalCalls++

	if i < len(f.evalErrs) && f.evalErrs[i] != nil {
		return "", f.evalErrs[i]
	}
	if i < len(f.evalResponses) {
		return f.evalResponses[i], nil
	}
	return "", errors.New("unexpected evaluation call")
}

func answersJSON(name string, first, last int, awarded, possible float64) string {
	b := strings.Builder{}
	fmt.Fprintf(&b, `{"student_name":%q,"roll_no":"R-01","total_questions_detected":%d,"answers":[`, name, last-first+1)
	for q := first; q <= last; q++ {
		if q > first {
			b.WriteString(",")
		}
		fmt.Fprintf(&b,
			`{"question_no":%d,"section":"A","student_answer":"ans %d","score":[%g,%g],"answer_matches":true}`,
			q, q, awarded, possible,
		)
	}
	b.WriteString(`]}`)
	return b.String()
}

func newTestEvaluationService(chat ai.ChatCompleter) EvaluationService {
	return NewEvaluationService(chat, 8, 5, zerolog.Nop())
}

func TestEvaluateSingleShotSmallPaper(t *testing.T) {
	chat := &fakeChat{
		countResponse: "4",
		evalResponses: []string{answersJSON("Asha", 1, 4, 2, 2)},
	}
	svc := newTestEvaluationService(chat)

	var statuses []models.EvaluationStatus
	result, err := svc.Evaluate(context.Background(), EvaluationRequest{StudentName: "Asha", RollNo: "R-01"}, func(s models.EvaluationStatus) {
		statuses = append(statuses, s)
	})
	require.NoError(t, err)

	require.Equal(t, 1, chat.evalCalls, "a 4-question paper must grade in one call")
	require.Contains(t, chat.evalPrompts[0], "Evaluate every question")
	require.Len(t, result.Answers, 4)
	require.Equal(t, 4, result.TotalQuestionsDetected)
	require.Equal(t, []models.EvaluationStatus{
		models.EvaluationStatusProcessing,
		models.EvaluationStatusCompleted,
	}, statuses)
}

func TestEvaluateBatchedRangesFortyTwoQuestions(t *testing.T) {
	responses := make([]string, 0, 6)
	for _, r := range [][2]int{{1, 8}, {9, 16}, {17, 24}, {25, 32}, {33, 40}, {41, 42}} {
		responses = append(responses, answersJSON("Asha", r[0], r[1], 1, 2))
	}
	chat := &fakeChat{countResponse: "42", evalResponses: responses}
	svc := newTestEvaluationService(chat)

	result, err := svc.Evaluate(context.Background(), EvaluationRequest{StudentName: "Asha"}, nil)
	require.NoError(t, err)

	require.Equal(t, 6, chat.evalCalls)
	require.Contains(t, chat.evalPrompts[0], "questions 1 through 8")
	require.Contains(t, chat.evalPrompts[5], "questions 41 through 42")
	require.Len(t, result.Answers, 42)
	require.Equal(t, 42, result.TotalQuestionsDetected)

	for i, a := range result.Answers {
		require.Equal(t, i+1, a.QuestionNo, "answers must be numbered sequentially after merge")
	}

	// Batch-local summaries are untrustworthy, so the merged result carries a
	// synthesized one.
	require.NotEmpty(t, result.OverallPerformance.PersonalizedSummary)
	require.Equal(t, 42, result.QuestionsBySection["A"])
}

func TestEvaluateBatchedSkipsFailedBatch(t *testing.T) {
	chat := &fakeChat{
		countResponse: "16",
		evalResponses: []string{answersJSON("Asha", 1, 8, 2, 2), ""},
		evalErrs:      []error{nil, errors.New("provider timeout")},
	}
	svc := newTestEvaluationService(chat)

	result, err := svc.Evaluate(context.Background(), EvaluationRequest{StudentName: "Asha"}, nil)
	require.NoError(t, err)
	require.Len(t, result.Answers, 8, "the failed batch's questions are absent, not placeholdered")
}

func TestEvaluateAllBatchesFailed(t *testing.T) {
	chat := &fakeChat{
		countResponse: "16",
		evalErrs:      []error{errors.New("timeout"), errors.New("timeout")},
	}
	svc := newTestEvaluationService(chat)

	var statuses []models.EvaluationStatus
	_, err := svc.Evaluate(context.Background(), EvaluationRequest{}, func(s models.EvaluationStatus) {
		statuses = append(statuses, s)
	})
	require.ErrorIs(t, err, ErrEvaluationFailed)
	require.Equal(t, models.EvaluationStatusFailed, statuses[len(statuses)-1])
}

func TestEvaluateCountFailureFallsBackToSingleShot(t *testing.T) {
	chat := &fakeChat{
		countErr:      errors.New("provider unavailable"),
		evalResponses: []string{answersJSON("Asha", 1, 3, 1, 1)},
	}
	svc := newTestEvaluationService(chat)

	result, err := svc.Evaluate(context.Background(), EvaluationRequest{StudentName: "Asha"}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, chat.evalCalls)
	require.Len(t, result.Answers, 3)
}

func TestEvaluateRepairsFencedJSON(t *testing.T) {
	fenced := "Here is the evaluation:\n```json\n" + answersJSON("Asha", 1, 2, 1, 1) + "\n```"
	chat := &fakeChat{countResponse: "2", evalResponses: []string{fenced}}
	svc := newTestEvaluationService(chat)

	result, err := svc.Evaluate(context.Background(), EvaluationRequest{}, nil)
	require.NoError(t, err)
	require.Len(t, result.Answers, 2)
}

func TestEvaluateRejectsMissingAnswers(t *testing.T) {
	chat := &fakeChat{countResponse: "2", evalResponses: []string{`{"student_name":"Asha"}`}}
	svc := newTestEvaluationService(chat)

	_, err := svc.Evaluate(context.Background(), EvaluationRequest{}, nil)
	require.ErrorIs(t, err, ErrInvalidShape)
}

func TestNormalizeClampsScoreAboveMaximum(t *testing.T) {
	svc := newTestEvaluationService(nil).(*evaluationService)
	result := models.EvaluationResult{Answers: []models.AnswerRecord{
		{QuestionNo: 1, Score: models.ScorePair{5, 3}, AnswerMatches: true},
	}}

	svc.normalize(&result, EvaluationRequest{StudentName: "Asha"})

	require.Equal(t, models.ScorePair{3, 3}, result.Answers[0].Score)
}

func TestNormalizeReconcilesAnswerMatches(t *testing.T) {
	svc := newTestEvaluationService(nil).(*evaluationService)
	result := models.EvaluationResult{Answers: []models.AnswerRecord{
		{QuestionNo: 1, Score: models.ScorePair{0, 2}, AnswerMatches: true},
		{QuestionNo: 2, Score: models.ScorePair{1, 2}, AnswerMatches: false},
	}}

	svc.normalize(&result, EvaluationRequest{})

	require.False(t, result.Answers[0].AnswerMatches)
	require.Equal(t, mismatchRemark, result.Answers[0].Remarks)
	require.True(t, result.Answers[1].AnswerMatches)
}

func TestNormalizeRenumbersByPositionAndDefaults(t *testing.T) {
	svc := newTestEvaluationService(nil).(*evaluationService)
	result := models.EvaluationResult{
		TotalQuestionsDetected: 10,
		Answers: []models.AnswerRecord{
			{QuestionNo: 7, StudentAnswer: "x = 4", Score: models.ScorePair{2, 2}},
			{QuestionNo: 3, Score: models.ScorePair{-1, 2}},
		},
	}

	svc.normalize(&result, EvaluationRequest{StudentName: "Asha", RollNo: "R-09"})

	require.Equal(t, 2, result.TotalQuestionsDetected)

	// Array order is preserved; question numbers follow position, so the
	// answer the model labelled 7 stays first and becomes question 1.
	require.Equal(t, 1, result.Answers[0].QuestionNo)
	require.Equal(t, "x = 4", result.Answers[0].StudentAnswer)
	require.Equal(t, 2, result.Answers[1].QuestionNo)

	require.Equal(t, models.ScorePair{0, 2}, result.Answers[1].Score, "negative awarded marks clamp to zero")
	require.Equal(t, "x = 4", result.Answers[0].RawExtractedText, "raw text defaults to the student answer")
	require.Equal(t, "Asha", result.StudentName)
	require.Equal(t, "R-09", result.RollNo)
	require.NotEmpty(t, result.Answers[0].PersonalizedFeedback)
	require.NotEmpty(t, result.Answers[0].AlignmentNotes)
}

func TestNormalizePrefixesMismatchNoteOntoRemarks(t *testing.T) {
	svc := newTestEvaluationService(nil).(*evaluationService)
	result := models.EvaluationResult{Answers: []models.AnswerRecord{
		{QuestionNo: 1, Score: models.ScorePair{0, 5}, Remarks: "Calculation is incomplete."},
		{QuestionNo: 2, Score: models.ScorePair{0, 5}, Remarks: "Answer doesn't match the working shown."},
	}}

	svc.normalize(&result, EvaluationRequest{})

	require.Equal(t, mismatchRemark+" Calculation is incomplete.", result.Answers[0].Remarks)
	// Remarks that already say so are left alone.
	require.Equal(t, "Answer doesn't match the working shown.", result.Answers[1].Remarks)
}

func TestNormalizeFeedbackFallsBackToRemarks(t *testing.T) {
	svc := newTestEvaluationService(nil).(*evaluationService)
	result := models.EvaluationResult{Answers: []models.AnswerRecord{
		{QuestionNo: 1, Score: models.ScorePair{3, 5}, Remarks: "Method is right, arithmetic slip at the end."},
		{QuestionNo: 2, Score: models.ScorePair{5, 5}},
	}}

	svc.normalize(&result, EvaluationRequest{})

	require.Equal(t, "Method is right, arithmetic slip at the end.", result.Answers[0].PersonalizedFeedback)
	require.Equal(t, "Good work on question 2.", result.Answers[1].PersonalizedFeedback)
}

func TestQuestionRanges(t *testing.T) {
	require.Equal(t, []questionRange{{1, 8}, {9, 16}, {17, 18}}, questionRanges(18, 8))
	require.Equal(t, []questionRange{{1, 5}}, questionRanges(5, 8))
	require.Nil(t, questionRanges(0, 8))
}

func TestPercentageRoundsHalfUp(t *testing.T) {
	require.Equal(t, 50, Percentage(1, 2))
	require.Equal(t, 67, Percentage(2, 3))
	require.Equal(t, 33, Percentage(1, 3))
	require.Equal(t, 63, Percentage(12.5, 20))
	require.Equal(t, 0, Percentage(3, 0))
}
