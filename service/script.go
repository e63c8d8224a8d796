package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"lecture-narrator/constant"
)

const (
	MinScriptChars       = 50
	MaxScriptChars       = 2000
	fallbackExcerptChars = 200
)

const scriptSystemPrompt = `You are an expert lecturer. Write the spoken narration for one presentation slide.
The script is read aloud by a text-to-speech engine: write natural, flowing spoken prose.
Do not use lists, markdown, headings, quotation marks, emojis or stage directions.
Explain the slide to students as you would in a live lecture, in %d to %d characters.
Write the script in %s.`

var refusalPrefixes = []string{
	"i'm sorry",
	"i am sorry",
	"i cannot",
	"i can't",
	"as an ai",
	"i don't have access",
	"i do not have access",
	"i'm unable",
	"i am unable",
}

var (
	reQuotes     = regexp.MustCompile("[\"“”„«»`]")
	reMarkdown   = regexp.MustCompile(`[*#]`)
	reWhitespace = regexp.MustCompile(`[\s\p{Z}]+`)
)

// LanguageModel is the external text generation provider.
type LanguageModel interface {
	Complete(ctx context.Context, systemPrompt, prompt string) (string, error)
}

type ScriptInput struct {
	Number int
	Text   string
}

type ScriptResult struct {
	Number   int
	Script   string
	Fallback bool
}

type ScriptGenerator struct {
	llm   LanguageModel
	delay time.Duration
}

func NewScriptGenerator(llm LanguageModel, delay time.Duration) *ScriptGenerator {
	return &ScriptGenerator{
		llm:   llm,
		delay: delay,
	}
}

// Generate turns slide text into a narration script. It never fails: invalid
// output or a provider error yields the deterministic fallback script.
func (g *ScriptGenerator) Generate(ctx context.Context, slideText, customInstructions string, lang constant.Language) (string, bool) {
	return g.generate(ctx, 0, slideText, customInstructions, lang)
}

// GenerateBatch processes slides one after another, pausing between calls.
// The result is in input order; a cancelled context stops the batch and
// returns the slides processed so far.
func (g *ScriptGenerator) GenerateBatch(ctx context.Context, slides []ScriptInput, customInstructions string, lang constant.Language) []ScriptResult {
	results := make([]ScriptResult, 0, len(slides))
	for i, slide := range slides {
		if i > 0 {
			if err := pause(ctx, g.delay); err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).Int("processed", len(results)).Msg("script batch interrupted")
				return results
			}
		}
		script, fallback := g.GenerateForSlide(ctx, slide.Number, slide.Text, customInstructions, lang)
		results = append(results, ScriptResult{Number: slide.Number, Script: script, Fallback: fallback})
	}
	return results
}

// GenerateForSlide adds continuity context for every slide after the first.
func (g *ScriptGenerator) GenerateForSlide(ctx context.Context, number int, slideText, customInstructions string, lang constant.Language) (string, bool) {
	return g.generate(ctx, number-1, slideText, customInstructions, lang)
}

func (g *ScriptGenerator) generate(ctx context.Context, previous int, slideText, customInstructions string, lang constant.Language) (string, bool) {
	logger := zerolog.Ctx(ctx).With().Str("language", lang.String()).Int("slide", previous+1).Logger()

	if g.llm == nil || strings.TrimSpace(slideText) == "" {
		return FallbackScript(slideText, lang), true
	}

	raw, err := g.llm.Complete(ctx, buildSystemPrompt(customInstructions, lang), buildSlidePrompt(previous, slideText))
	if err != nil {
		logger.Warn().Err(err).Msg("script generation failed, using fallback")
		return FallbackScript(slideText, lang), true
	}

	script := CleanGeneratedContent(raw)
	if err := ValidateScript(script); err != nil {
		logger.Warn().Err(err).Int("length", utf8.RuneCountInString(script)).Msg("generated script rejected, using fallback")
		return FallbackScript(slideText, lang), true
	}
	return script, false
}

func buildSystemPrompt(customInstructions string, lang constant.Language) string {
	prompt := fmt.Sprintf(scriptSystemPrompt, MinScriptChars, MaxScriptChars, lang.DisplayName())
	if instructions := strings.TrimSpace(customInstructions); instructions != "" {
		prompt += "\n\nAdditional instructions from the lecturer:\n" + instructions
	}
	return prompt
}

func buildSlidePrompt(previous int, slideText string) string {
	var b strings.Builder
	if previous > 0 {
		fmt.Fprintf(&b, "This slide follows slide %d.\n", previous)
	}
	b.WriteString("Slide content:\n")
	b.WriteString(strings.TrimSpace(slideText))
	return b.String()
}

// CleanGeneratedContent strips quotation and markdown marks and collapses all
// whitespace to single spaces. It is idempotent.
func CleanGeneratedContent(content string) string {
	content = reQuotes.ReplaceAllString(content, "")
	content = reMarkdown.ReplaceAllString(content, "")
	content = reWhitespace.ReplaceAllString(content, " ")
	return strings.TrimSpace(content)
}

// ValidateScript reports ErrGenerationInvalid for out-of-range lengths and refusals.
func ValidateScript(script string) error {
	length := utf8.RuneCountInString(script)
	if length < MinScriptChars || length > MaxScriptChars {
		return fmt.Errorf("%w: length %d outside [%d, %d]", ErrGenerationInvalid, length, MinScriptChars, MaxScriptChars)
	}

	lower := strings.ToLower(strings.ReplaceAll(script, "’", "'"))
	for _, prefix := range refusalPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return fmt.Errorf("%w: refusal %q", ErrGenerationInvalid, prefix)
		}
	}
	return nil
}

// FallbackScript builds the deterministic replacement script from the
// language greeting and the first characters of the slide text.
func FallbackScript(slideText string, lang constant.Language) string {
	excerpt := CleanGeneratedContent(slideText)
	if excerpt == "" {
		return lang.Greeting() + " " + lang.FallbackEmpty()
	}
	return lang.Greeting() + " " + lang.FallbackIntro() + " " + truncateRunes(excerpt, fallbackExcerptChars, "...")
}

func truncateRunes(s string, limit int, marker string) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit])) + marker
}

// pause waits for d unless ctx ends first.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
