package ai

import (
	"fmt"
	"strings"
)

// PageMarker renders the delimiter emitted between pages of extracted text.
func PageMarker(page int) string {
	return fmt.Sprintf("=== PAGE %d ===", page)
}

func visionSystemPrompt(hint DocumentHint) string {
	b := strings.Builder{}
	b.WriteString("You are a precise document transcription engine for an education platform. ")
	b.WriteString("Transcribe every page image you receive into plain text, in the order the images are given.\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Begin each page with the exact marker `=== PAGE n ===` where n is the 1-based position of the image in this request.\n")
	b.WriteString("- Preserve question numbering, section headings and sub-numbering schemes exactly as printed.\n")
	b.WriteString("- Convert mathematical notation to LaTeX delimited with $$ ... $$.\n")
	b.WriteString("- Describe diagrams as a textual graph description inside [DIAGRAM: ...] blocks, naming nodes, edges and labels.\n")
	b.WriteString("- Do not summarize, do not skip faint or handwritten text, and do not invent content.\n")

	switch hint {
	case HintQuestionPaper:
		b.WriteString("\nThe images are pages of a question paper. Keep marks allocations like (2 marks) attached to their questions.")
	case HintAnswerKey:
		b.WriteString("\nThe images are pages of an answer key. Keep each model answer attached to its question number.")
	case HintStudentSheet:
		b.WriteString("\nThe images are handwritten student answer sheets. Transcribe faithfully, including crossed-out work, and note illegible spans as [ILLEGIBLE].")
	case HintChapterMaterial:
		b.WriteString("\nThe images are textbook chapter material. Preserve headings, definitions and worked examples.")
	}

	return b.String()
}

func visionUserPrompt(hint DocumentHint, imageCount int) string {
	return fmt.Sprintf(
		"Transcribe the following %d page image(s) of a %s document. Start each page with its `=== PAGE n ===` marker.",
		imageCount, string(hint),
	)
}

// QuestionCountSystemPrompt instructs the model to return nothing but an
// integer question count.
func QuestionCountSystemPrompt() string {
	return "You count questions in examination papers. Scan every section, every sub-numbering scheme " +
		"(1, 1a, 1(i), Q1, roman numerals) and count each independently answerable question once. " +
		"Respond with a single integer and nothing else."
}

// QuestionCountUserPrompt wraps the paper text for the counting call.
func QuestionCountUserPrompt(questionPaper string) string {
	return "How many questions does this paper contain in total?\n\n" + questionPaper
}

// EvaluationSystemPrompt is the shared grading instruction for both the
// single-shot and batched evaluation paths.
func EvaluationSystemPrompt() string {
	b := strings.Builder{}
	b.WriteString("You are an experienced teacher grading a student's answer sheet against a question paper and its answer key. ")
	b.WriteString("Respond with a single JSON object, no prose, matching this shape:\n")
	b.WriteString(`{
  "student_name": string,
  "roll_no": string,
  "total_questions_detected": int,
  "questions_by_section": {"<section>": int},
  "answers": [{
    "question_no": int,
    "section": string,
    "question_text": string,
    "expected_answer": string,
    "student_answer": string,
    "raw_extracted_text": string,
    "score": [awarded, possible],
    "remarks": string,
    "confidence": number,
    "concepts": [string],
    "missing_elements": [string],
    "answer_matches": bool,
    "personalized_feedback": string,
    "alignment_notes": string
  }],
  "overall_performance": {
    "strengths": [string],
    "improvement_areas": [string],
    "study_recommendations": [string],
    "personalized_summary": string
  }
}` + "\n\n")
	b.WriteString("Scoring rules: award between 0 and the marks printed on the paper for each question; ")
	b.WriteString("never award more than the possible marks; set answer_matches true only when any marks are awarded; ")
	b.WriteString("align each student answer to its question number even when the student answered out of order.")
	return b.String()
}

// EvaluationUserPrompt assembles the three texts for one evaluation call.
// When firstQuestion/lastQuestion are non-zero, output is restricted to that
// question-number range (the batched path).
func EvaluationUserPrompt(questionPaper, answerKey, studentSheet, studentName, rollNo string, firstQuestion, lastQuestion int) string {
	b := strings.Builder{}
	b.WriteString("# Question Paper\n")
	b.WriteString(questionPaper)
	b.WriteString("\n\n# Answer Key\n")
	b.WriteString(answerKey)
	b.WriteString("\n\n# Student Answer Sheet\n")
	b.WriteString(studentSheet)
	b.WriteString("\n\n# Student\n")
	b.WriteString(fmt.Sprintf("Name: %s\nRoll No: %s\n", studentName, rollNo))

	if firstQuestion > 0 && lastQuestion >= firstQuestion {
		b.WriteString(fmt.Sprintf(
			"\nEvaluate ONLY questions %d through %d. The answers array must contain exactly those questions and no others.",
			firstQuestion, lastQuestion,
		))
	} else {
		b.WriteString("\nEvaluate every question on the paper.")
	}

	b.WriteString("\nReturn JSON.")
	return b.String()
}
