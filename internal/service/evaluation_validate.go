package service

import (
	"fmt"
	"math"
	"strings"

	"github.com/vidya-labs/vidya-go-api/internal/models"
)

const mismatchRemark = "Answer doesn't match the expected solution."

// normalize repairs model output in place so downstream consumers can rely
// on a consistent shape: sequential question numbers, sane score pairs, a
// coherent answer_matches flag and non-empty text fields. It never discards
// an answer; a broken record is fixed, not dropped.
func (s *evaluationService) normalize(result *models.EvaluationResult, req EvaluationRequest) {
	if result.StudentName == "" {
		result.StudentName = req.StudentName
	}
	if result.RollNo == "" {
		result.RollNo = req.RollNo
	}

	// Renumbering follows array position, not the model's question_no; the
	// order answers arrive in is the order they keep.
	for i := range result.Answers {
		normalizeAnswer(&result.Answers[i], i+1)
	}

	// The model's own count is advisory; the answers array is authoritative.
	if result.TotalQuestionsDetected != len(result.Answers) {
		result.TotalQuestionsDetected = len(result.Answers)
	}

	if len(result.QuestionsBySection) == 0 {
		result.QuestionsBySection = sectionCounts(result.Answers)
	}

	if result.OverallPerformance.PersonalizedSummary == "" {
		result.OverallPerformance = genericPerformance(result)
	}
}

func normalizeAnswer(a *models.AnswerRecord, questionNo int) {
	a.QuestionNo = questionNo

	awarded, possible := a.Score.Awarded(), a.Score.Possible()
	if possible < 0 {
		possible = 0
	}
	if awarded < 0 {
		awarded = 0
	}
	if awarded > possible {
		awarded = possible
	}
	a.Score = models.ScorePair{awarded, possible}

	// answer_matches follows the marks, not the model's mood.
	a.AnswerMatches = awarded > 0

	if !a.AnswerMatches {
		switch {
		case a.Remarks == "":
			a.Remarks = mismatchRemark
		case !strings.Contains(strings.ToLower(a.Remarks), "doesn't match"):
			a.Remarks = mismatchRemark + " " + a.Remarks
		}
	}

	if a.Section == "" {
		a.Section = "General"
	}
	if a.RawExtractedText == "" {
		a.RawExtractedText = a.StudentAnswer
	}
	if a.PersonalizedFeedback == "" {
		if a.Remarks != "" {
			a.PersonalizedFeedback = a.Remarks
		} else {
			a.PersonalizedFeedback = fmt.Sprintf("Good work on question %d.", questionNo)
		}
	}
	if a.AlignmentNotes == "" {
		a.AlignmentNotes = "Matched by question number."
	}
	if a.Confidence < 0 {
		a.Confidence = 0
	}
	if a.Confidence > 1 {
		a.Confidence = 1
	}
}

func sectionCounts(answers []models.AnswerRecord) map[string]int {
	counts := make(map[string]int, 4)
	for _, a := range answers {
		counts[a.Section]++
	}
	return counts
}

// genericPerformance synthesizes an overall summary from the per-question
// outcomes. The batched path always lands here; single-shot only when the
// model omitted its summary.
func genericPerformance(result *models.EvaluationResult) models.OverallPerformance {
	awarded, possible := result.TotalScore()
	percent := Percentage(awarded, possible)

	var correct int
	for _, a := range result.Answers {
		if a.AnswerMatches {
			correct++
		}
	}

	return models.OverallPerformance{
		Strengths:            []string{fmt.Sprintf("Answered %d of %d questions correctly.", correct, len(result.Answers))},
		ImprovementAreas:     []string{"Review the questions marked as not matching the expected solution."},
		StudyRecommendations: []string{"Revisit the answer key for questions with low scores."},
		PersonalizedSummary: fmt.Sprintf(
			"%s scored %.1f out of %.1f marks (%d%%) across %d questions.",
			result.StudentName, awarded, possible, percent, len(result.Answers),
		),
	}
}

// Percentage computes awarded/possible as a whole percentage, rounding
// half-up. A zero possible total yields 0.
func Percentage(awarded, possible float64) int {
	if possible <= 0 {
		return 0
	}
	return int(math.Floor(awarded/possible*100 + 0.5))
}
