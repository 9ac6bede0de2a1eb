package ai

import "context"

// DocumentHint tells the vision model what kind of document it is reading so
// the extraction prompt can emphasise the right structures.
type DocumentHint string

const (
	HintQuestionPaper   DocumentHint = "question"
	HintAnswerKey       DocumentHint = "answer"
	HintStudentSheet    DocumentHint = "student-sheet"
	HintChapterMaterial DocumentHint = "chapter-material"
)

// ResponseFormat requests either free text or a strict JSON object from the
// provider. JSON mode is advisory: providers occasionally violate it, which
// is why the repair ladder exists.
type ResponseFormat string

const (
	FormatText ResponseFormat = "text"
	FormatJSON ResponseFormat = "json"
)

// VisionExtractor turns one batch of page images into text. Output covers all
// given images in order, separated by explicit page delimiter markers.
type VisionExtractor interface {
	ExtractText(ctx context.Context, images []string, hint DocumentHint) (string, error)
}

// ChatCompleter issues a general completion call.
type ChatCompleter interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, format ResponseFormat) (string, error)
}
