package raster

import (
	"errors"
	"fmt"
)

// ErrPasswordProtected indicates the document is encrypted and cannot be rendered.
var ErrPasswordProtected = errors.New("document is password protected")

// ErrEmptyDocument indicates no bytes were supplied.
var ErrEmptyDocument = errors.New("document is empty")

// InvalidDocumentError reports a document that failed structural validation,
// carrying the best-guess actual file type so callers can surface an
// actionable message.
type InvalidDocumentError struct {
	DetectedType string
	DetectedMime string
}

func (e *InvalidDocumentError) Error() string {
	if e.DetectedType != "" {
		return fmt.Sprintf("invalid PDF document: file appears to be a %s", e.DetectedType)
	}
	return "invalid PDF document: unrecognized file format"
}

// PageRenderError reports a failure rendering a single page. The whole
// rasterization call aborts; callers needing partial results must catch at a
// coarser level.
type PageRenderError struct {
	Page int
	Err  error
}

func (e *PageRenderError) Error() string {
	return fmt.Sprintf("failed to render page %d: %v", e.Page, e.Err)
}

func (e *PageRenderError) Unwrap() error {
	return e.Err
}
