package raster

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	fitz "github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog"
	xdraw "golang.org/x/image/draw"
)

const (
	// renderDPI is the working resolution pages are rendered at. 144 DPI keeps
	// small print legible for OCR even before enhancement.
	renderDPI = 144.0

	// minOutputWidth is the floor below which a requested MaxWidth is ignored.
	// Shrinking further destroys OCR accuracy on dense question papers.
	minOutputWidth = 1000

	defaultQuality = 0.85
)

// Format selects the encoding of rendered page images.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
)

// Options controls page rendering and enhancement.
type Options struct {
	Quality   float64
	Grayscale bool
	MaxWidth  int
	Format    Format
}

// PageImage is one rendered page, held in memory only for the duration of the
// extraction call that produced it.
type PageImage struct {
	Page    int
	Width   int
	Height  int
	DataURI string
}

// Rasterizer converts PDF bytes into ordered page images.
type Rasterizer struct {
	logger zerolog.Logger
}

// New constructs a rasterizer.
func New(logger zerolog.Logger) *Rasterizer {
	return &Rasterizer{logger: logger.With().Str("component", "raster").Logger()}
}

// Rasterize renders every page of the document. The call is pure over the
// input bytes: each invocation re-renders from scratch and nothing is
// persisted. A failure on any single page aborts the whole call.
func (r *Rasterizer) Rasterize(ctx context.Context, data []byte, opts Options) ([]PageImage, error) {
	if err := ValidateDocument(data, r.logger); err != nil {
		return nil, err
	}

	if opts.Quality <= 0 || opts.Quality > 1 {
		opts.Quality = defaultQuality
	}
	if opts.Format == "" {
		opts.Format = FormatJPEG
	}

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		if isEncryptionError(err) {
			return nil, ErrPasswordProtected
		}
		return nil, fmt.Errorf("failed to open document: %w", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount == 0 {
		return nil, &InvalidDocumentError{DetectedType: "PDF with no pages"}
	}

	pages := make([]PageImage, 0, pageCount)
	for p := 0; p < pageCount; p++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		rendered, err := doc.ImageDPI(p, renderDPI)
		if err != nil {
			if isEncryptionError(err) {
				return nil, ErrPasswordProtected
			}
			return nil, &PageRenderError{Page: p + 1, Err: err}
		}

		img := r.enhance(rendered, opts)

		encoded, err := encode(img, opts)
		if err != nil {
			return nil, &PageRenderError{Page: p + 1, Err: err}
		}

		bounds := img.Bounds()
		pages = append(pages, PageImage{
			Page:    p + 1,
			Width:   bounds.Dx(),
			Height:  bounds.Dy(),
			DataURI: encoded,
		})
	}

	r.logger.Debug().Int("pages", pageCount).Msg("document rasterized")

	return pages, nil
}

// enhance applies downscaling, grayscale conversion and contrast stretching.
func (r *Rasterizer) enhance(img image.Image, opts Options) image.Image {
	bounds := img.Bounds()
	width := bounds.Dx()

	if opts.MaxWidth > 0 && width > opts.MaxWidth {
		target := opts.MaxWidth
		if target < minOutputWidth {
			target = minOutputWidth
		}
		if target < width {
			height := bounds.Dy() * target / width
			scaled := image.NewRGBA(image.Rect(0, 0, target, height))
			xdraw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), img, bounds, xdraw.Over, nil)
			img = scaled
		}
	}

	if opts.Grayscale {
		img = contrastStretch(toGrayscale(img))
	}

	return img
}

// toGrayscale desaturates using luminance channel weighting.
func toGrayscale(img image.Image) *image.Gray {
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			lum := 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
			gray.SetGray(x, y, color.Gray{Y: toGray8(lum)})
		}
	}
	return gray
}

// contrastStretch applies a min-max normalization across the page. No
// sharpening: vision models handle soft edges better than ringing artefacts.
func contrastStretch(gray *image.Gray) *image.Gray {
	minV, maxV := uint8(255), uint8(0)
	for _, v := range gray.Pix {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}

	if maxV <= minV {
		return gray
	}

	span := float64(maxV - minV)
	for i, v := range gray.Pix {
		gray.Pix[i] = toGray8(255 * float64(v-minV) / span)
	}
	return gray
}

func toGray8(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}

func encode(img image.Image, opts Options) (string, error) {
	buf := bytes.NewBuffer(nil)
	mime := "image/jpeg"

	switch opts.Format {
	case FormatPNG:
		mime = "image/png"
		if err := png.Encode(buf, img); err != nil {
			return "", fmt.Errorf("png encode: %w", err)
		}
	default:
		quality := int(opts.Quality * 100)
		if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return "", fmt.Errorf("jpeg encode: %w", err)
		}
	}

	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(buf.Bytes())), nil
}

// ValidateDocument performs structural checks before rendering: the %PDF
// header magic must be present, and a missing %%EOF trailer is logged but
// tolerated since many generators truncate it while the body stays readable.
func ValidateDocument(data []byte, logger zerolog.Logger) error {
	if len(data) == 0 {
		return ErrEmptyDocument
	}

	if !bytes.HasPrefix(data, []byte("%PDF")) {
		detected := mimetype.Detect(data)
		return &InvalidDocumentError{
			DetectedType: describeMime(detected),
			DetectedMime: detected.String(),
		}
	}

	tail := data
	if len(tail) > 1024 {
		tail = tail[len(tail)-1024:]
	}
	if !bytes.Contains(tail, []byte("%%EOF")) {
		logger.Warn().Msg("document missing %%EOF trailer, attempting render anyway")
	}

	return nil
}

func describeMime(m *mimetype.MIME) string {
	switch {
	case m.Is("application/zip"):
		return "ZIP file"
	case m.Is("text/html"):
		return "HTML file"
	case strings.HasPrefix(m.String(), "image/"):
		return fmt.Sprintf("%s image", strings.TrimPrefix(m.String(), "image/"))
	case strings.HasPrefix(m.String(), "text/"):
		return "plain text file"
	default:
		return m.String()
	}
}

func isEncryptionError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "password") || strings.Contains(msg, "encrypt")
}
