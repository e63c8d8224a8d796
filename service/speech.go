package service

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"lecture-narrator/constant"
	"lecture-narrator/pkg/storage"
)

// MaxSpeechChars is the provider's input ceiling, ellipsis included.
const MaxSpeechChars = 4000

const speechEllipsis = "..."

// safe punctuation kept in speech input besides letters, marks, digits and spaces
const speechPunctuation = ".,!?;:'\"-()%&/¿¡…，。、！？：；"

var errNothingToSpeak = errors.New("script is empty after preprocessing")

// SpeechProvider is the external text-to-speech service.
type SpeechProvider interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}

type SpeechRequest struct {
	LectureID   uuid.UUID
	RunID       uuid.UUID
	SlideNumber int
	Script      string
	Language    constant.Language
}

type Audio struct {
	URL      string
	Key      string
	Voice    string
	Duration float64
}

// SpeechResult is one batch entry. AudioURL is nil when synthesis failed.
type SpeechResult struct {
	Number   int
	AudioURL *string
	Key      string
	Duration float64
	Error    string
}

type SpeechSynthesizer struct {
	provider SpeechProvider
	storage  storage.ObjectStorage
	format   string
	delay    time.Duration
}

func NewSpeechSynthesizer(provider SpeechProvider, store storage.ObjectStorage, format string, delay time.Duration) *SpeechSynthesizer {
	if format == "" {
		format = "mp3"
	}
	return &SpeechSynthesizer{
		provider: provider,
		storage:  store,
		format:   format,
		delay:    delay,
	}
}

// Synthesize speaks one script and uploads the audio. Failures are *SynthesisError.
func (s *SpeechSynthesizer) Synthesize(ctx context.Context, req SpeechRequest) (Audio, error) {
	voice := req.Language.Voice()
	text := PrepareSpeechText(req.Script, req.Language)
	if text == "" {
		return Audio{}, &SynthesisError{Slide: req.SlideNumber, Err: errNothingToSpeak}
	}

	data, err := s.provider.Synthesize(ctx, text, voice)
	if err != nil {
		return Audio{}, &SynthesisError{Slide: req.SlideNumber, Err: err}
	}

	key := fmt.Sprintf("lectures/%s/audio/%s/slide-%03d-%s.%s", req.LectureID, req.RunID, req.SlideNumber, uuid.NewString(), s.format)
	url, err := s.storage.Put(ctx, key, data, audioContentType(s.format))
	if err != nil {
		return Audio{}, &SynthesisError{Slide: req.SlideNumber, Err: &StorageError{Key: key, Err: err}}
	}

	duration, ok := wavDuration(data)
	if !ok {
		duration = EstimateDuration(text, req.Language)
	}

	zerolog.Ctx(ctx).Debug().
		Int("slide", req.SlideNumber).
		Str("voice", voice).
		Float64("duration", duration).
		Msg("slide audio synthesized")

	return Audio{URL: url, Key: key, Voice: voice, Duration: duration}, nil
}

// SynthesizeBatch processes requests sequentially with a pause between calls.
// A failed item is recorded with a nil AudioURL and the batch continues;
// a cancelled context stops the batch with the results so far.
func (s *SpeechSynthesizer) SynthesizeBatch(ctx context.Context, reqs []SpeechRequest) []SpeechResult {
	results := make([]SpeechResult, 0, len(reqs))
	for i, req := range reqs {
		if i > 0 {
			if err := pause(ctx, s.delay); err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).Int("processed", len(results)).Msg("speech batch interrupted")
				return results
			}
		}

		audio, err := s.Synthesize(ctx, req)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Int("slide", req.SlideNumber).Msg("slide audio failed")
			results = append(results, SpeechResult{Number: req.SlideNumber, Error: err.Error()})
			continue
		}

		url := audio.URL
		results = append(results, SpeechResult{
			Number:   req.SlideNumber,
			AudioURL: &url,
			Key:      audio.Key,
			Duration: audio.Duration,
		})
	}
	return results
}

// PrepareSpeechText collapses whitespace, drops characters outside the safe
// set, applies language normalization and truncates to MaxSpeechChars.
func PrepareSpeechText(text string, lang constant.Language) string {
	text = reWhitespace.ReplaceAllString(text, " ")

	text = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsMark(r), r == ' ':
			return r
		case strings.ContainsRune(speechPunctuation, r):
			return r
		}
		return -1
	}, text)

	switch lang {
	case constant.LanguageTurkish:
		text = strings.ToLowerSpecial(unicode.TurkishCase, text)
	case constant.LanguageGerman:
		text = strings.ReplaceAll(text, "ß", "ss")
	}

	text = strings.TrimSpace(reWhitespace.ReplaceAllString(text, " "))
	return truncateRunes(text, MaxSpeechChars-utf8.RuneCountInString(speechEllipsis), speechEllipsis)
}

// EstimateDuration applies the language speaking rate. The result is rounded
// to a tenth of a second and at least one second for non-empty text.
func EstimateDuration(text string, lang constant.Language) float64 {
	var units int
	if lang.CharacterTimed() {
		for _, r := range text {
			if !unicode.IsSpace(r) && !unicode.IsPunct(r) {
				units++
			}
		}
	} else {
		units = len(strings.Fields(text))
	}
	if units == 0 {
		return 0
	}

	seconds := float64(units) * 60 / float64(lang.WordsPerMinute())
	seconds = math.Round(seconds*10) / 10
	return math.Max(seconds, 1)
}

// wavDuration reads the exact duration from a RIFF/WAVE header.
func wavDuration(data []byte) (float64, bool) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return 0, false
	}

	var byteRate uint32
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := binary.LittleEndian.Uint32(data[pos+4 : pos+8])
		body := pos + 8

		switch id {
		case "fmt ":
			if body+12 > len(data) {
				return 0, false
			}
			byteRate = binary.LittleEndian.Uint32(data[body+8 : body+12])
		case "data":
			if byteRate == 0 {
				return 0, false
			}
			available := uint32(len(data) - body)
			if size > available {
				size = available
			}
			return math.Round(float64(size)/float64(byteRate)*10) / 10, true
		}

		next := body + int(size) + int(size%2)
		if next <= pos || next > len(data) {
			return 0, false
		}
		pos = next
	}
	return 0, false
}

func audioContentType(format string) string {
	switch format {
	case "wav":
		return "audio/wav"
	case "opus":
		return "audio/ogg"
	case "aac":
		return "audio/aac"
	case "flac":
		return "audio/flac"
	default:
		return "audio/mpeg"
	}
}
