package extract

import (
	"context"
	"image"
	"log/slog"

	"github.com/papercomputeco/recall/pkg/logger"
)

// TextRecognizer reads the characters on a frame.
type TextRecognizer interface {
	Recognize(ctx context.Context, img image.Image) (string, error)
}

// Describer produces a natural-language description of a frame.
type Describer interface {
	Describe(ctx context.Context, img image.Image) (string, error)
}

// Config configures an Extractor. Either source may be nil.
type Config struct {
	OCR      TextRecognizer
	Vision   Describer
	MaxChars int
	Logger   *slog.Logger
}

// Extractor applies the vision-first text policy to a frame.
type Extractor struct {
	ocr      TextRecognizer
	vision   Describer
	maxChars int
	logger   *slog.Logger
}

// Result carries everything derived from one frame.
type Result struct {
	// Text is the final text: the vision description when available,
	// otherwise cleaned OCR.
	Text string

	// RawOCR is the unmodified recognizer output.
	RawOCR string

	OCR    Outcome
	Vision Outcome
}

// NewExtractor builds an Extractor. MaxChars defaults to LiveMaxChars.
func NewExtractor(c Config) *Extractor {
	if c.MaxChars <= 0 {
		c.MaxChars = LiveMaxChars
	}
	return &Extractor{
		ocr:      c.OCR,
		vision:   c.Vision,
		maxChars: c.MaxChars,
		logger:   logger.OrNop(c.Logger),
	}
}

// Extract runs OCR and vision on img. It never fails: sources that cannot
// answer are reported through their Outcome.
func (e *Extractor) Extract(ctx context.Context, img image.Image) Result {
	var res Result

	res.OCR = Unavailable("no recognizer configured")
	if e.ocr != nil {
		raw, err := e.ocr.Recognize(ctx, img)
		if err != nil {
			e.logger.Debug("ocr unavailable", "error", err)
		}
		res.RawOCR = raw
		res.OCR = From(CleanOCRText(raw, e.maxChars), err)
	}

	res.Vision = Unavailable("no describer configured")
	if e.vision != nil {
		desc, err := e.vision.Describe(ctx, img)
		if err != nil {
			e.logger.Debug("vision unavailable", "error", err)
		}
		res.Vision = From(desc, err)
	}

	res.Text = First(res.Vision, res.OCR).Text
	return res
}
