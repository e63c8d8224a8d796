package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"lecture-narrator/constant"
	"lecture-narrator/pkg/storage"
)

const DefaultMinBlockChars = 20

var (
	ErrEmptySource       = errors.New("source file is empty")
	ErrNoUsableContent   = errors.New("no usable slides extracted")
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

type ExtractRequest struct {
	LectureID uuid.UUID
	RunID     uuid.UUID
	Data      []byte
	Format    constant.FileFormat
}

// SlideCandidate is one extracted unit, numbered from 1 in source order.
type SlideCandidate struct {
	Number   int
	Text     string
	ImageURL string
	ImageKey string
}

type Extractor interface {
	Extract(ctx context.Context, req ExtractRequest) ([]SlideCandidate, error)
}

// sourceUnit is a parsed slide or text block before rendering.
type sourceUnit struct {
	Text    string
	Picture []byte
}

type ContentExtractor struct {
	storage        storage.ObjectStorage
	renderer       *SlideRenderer
	minBlockChars  int
	placeholderURL string
	pdfText        func(data []byte) (string, error)
}

func NewContentExtractor(store storage.ObjectStorage, minBlockChars int, placeholderURL string) *ContentExtractor {
	if minBlockChars <= 0 {
		minBlockChars = DefaultMinBlockChars
	}
	return &ContentExtractor{
		storage:        store,
		renderer:       NewSlideRenderer(),
		minBlockChars:  minBlockChars,
		placeholderURL: placeholderURL,
		pdfText:        pdfPlainText,
	}
}

// Extract parses the source and publishes one rendered image per slide.
// Parse failures and empty results are *ExtractionError; rendering and
// upload failures degrade to placeholders.
func (e *ContentExtractor) Extract(ctx context.Context, req ExtractRequest) ([]SlideCandidate, error) {
	if len(req.Data) == 0 {
		return nil, &ExtractionError{Format: string(req.Format), Err: ErrEmptySource}
	}

	var units []sourceUnit
	switch req.Format {
	case constant.FileFormatPDF:
		text, err := e.pdfText(req.Data)
		if err != nil {
			return nil, &ExtractionError{Format: string(req.Format), Err: err}
		}
		for _, block := range SplitTextBlocks(text, e.minBlockChars) {
			units = append(units, sourceUnit{Text: block})
		}
	case constant.FileFormatPPTX:
		slides, err := parsePresentation(req.Data)
		if err != nil {
			return nil, &ExtractionError{Format: string(req.Format), Err: err}
		}
		units = slides
	default:
		return nil, &ExtractionError{Format: string(req.Format), Err: ErrUnsupportedFormat}
	}

	if len(units) == 0 {
		return nil, &ExtractionError{Format: string(req.Format), Err: ErrNoUsableContent}
	}

	zerolog.Ctx(ctx).Info().Int("slides", len(units)).Str("format", string(req.Format)).Msg("source parsed")

	candidates := make([]SlideCandidate, 0, len(units))
	for i, unit := range units {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		number := i + 1
		url, key := e.publishImage(ctx, req, number, unit)
		candidates = append(candidates, SlideCandidate{
			Number:   number,
			Text:     unit.Text,
			ImageURL: url,
			ImageKey: key,
		})
	}
	return candidates, nil
}

func (e *ContentExtractor) publishImage(ctx context.Context, req ExtractRequest, number int, unit sourceUnit) (string, string) {
	logger := zerolog.Ctx(ctx).With().Int("slide", number).Logger()

	png, err := e.renderer.Render(number, unit.Text, unit.Picture)
	if err != nil {
		logger.Warn().Err(err).Msg("slide rendering failed, using placeholder")
		png, err = e.renderer.Placeholder(number)
		if err != nil {
			logger.Error().Err(err).Msg("placeholder rendering failed")
			return e.placeholderURL, ""
		}
	}

	key := fmt.Sprintf("lectures/%s/slides/%s/slide-%03d.png", req.LectureID, req.RunID, number)
	url, err := e.storage.Put(ctx, key, png, "image/png")
	if err != nil {
		logger.Warn().Err(&StorageError{Key: key, Err: err}).Msg("slide image upload failed, using placeholder url")
		return e.placeholderURL, ""
	}
	return url, key
}
