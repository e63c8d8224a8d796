package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lecture-narrator/constant"
)

func TestCleanGeneratedContent(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "quotes", in: `"Welcome" to «class»`, want: "Welcome to class"},
		{name: "markdown", in: "## Title\n**bold** text", want: "Title bold text"},
		{name: "whitespace", in: "  one\n\n two\t\tthree  ", want: "one two three"},
		{name: "non breaking space", in: "a  b", want: "a b"},
		{name: "empty", in: " \n ", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CleanGeneratedContent(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, CleanGeneratedContent(got))
		})
	}
}

func TestValidateScript(t *testing.T) {
	assert.NoError(t, ValidateScript(narration("entropy")))
	assert.ErrorIs(t, ValidateScript("Too short."), ErrGenerationInvalid)
	assert.ErrorIs(t, ValidateScript(strings.Repeat("a", MaxScriptChars+1)), ErrGenerationInvalid)
	assert.NoError(t, ValidateScript(strings.Repeat("a", MaxScriptChars)))
	assert.NoError(t, ValidateScript(strings.Repeat("a", MinScriptChars)))
	assert.ErrorIs(t, ValidateScript("I’m sorry, but I cannot help with narrating this particular slide content."), ErrGenerationInvalid)
	assert.ErrorIs(t, ValidateScript("As an AI language model I do not have opinions about this slide at all."), ErrGenerationInvalid)
}

func TestFallbackScript(t *testing.T) {
	t.Run("empty english text", func(t *testing.T) {
		script := FallbackScript("", constant.LanguageEnglish)
		assert.True(t, strings.HasPrefix(script, "Hello everyone,"))
	})

	t.Run("unmapped language defaults to english", func(t *testing.T) {
		script := FallbackScript("", constant.Language("klingon"))
		assert.True(t, strings.HasPrefix(script, "Hello everyone,"))
	})

	t.Run("excerpt is truncated", func(t *testing.T) {
		text := strings.Repeat("word ", 100)
		script := FallbackScript(text, constant.LanguageFrench)
		assert.True(t, strings.HasPrefix(script, "Bonjour à tous,"))
		assert.True(t, strings.HasSuffix(script, "..."))
		assert.Less(t, utf8.RuneCountInString(script), 300)
	})

	t.Run("deterministic", func(t *testing.T) {
		assert.Equal(t, FallbackScript("Photosynthesis", constant.LanguageGerman), FallbackScript("Photosynthesis", constant.LanguageGerman))
	})
}

func TestScriptGenerator_Generate(t *testing.T) {
	ctx := context.Background()

	t.Run("valid output is cleaned", func(t *testing.T) {
		model := &stubModel{respond: func(int, string) (string, error) {
			return "**" + narration("cells") + "**\n\n", nil
		}}
		script, fallback := NewScriptGenerator(model, 0).Generate(ctx, "Cells", "", constant.LanguageEnglish)
		assert.False(t, fallback)
		assert.Equal(t, narration("cells"), script)
	})

	t.Run("provider error uses fallback", func(t *testing.T) {
		model := &stubModel{respond: func(int, string) (string, error) {
			return "", errors.New("quota exceeded")
		}}
		script, fallback := NewScriptGenerator(model, 0).Generate(ctx, "Mitochondria", "", constant.LanguageSpanish)
		assert.True(t, fallback)
		assert.Equal(t, FallbackScript("Mitochondria", constant.LanguageSpanish), script)
	})

	t.Run("refusal uses fallback", func(t *testing.T) {
		model := &stubModel{respond: func(int, string) (string, error) {
			return "I cannot narrate this slide because it does not contain enough information for me.", nil
		}}
		_, fallback := NewScriptGenerator(model, 0).Generate(ctx, "Slide", "", constant.LanguageEnglish)
		assert.True(t, fallback)
	})

	t.Run("empty slide text skips the model", func(t *testing.T) {
		model := &stubModel{respond: func(int, string) (string, error) {
			return narration("nothing"), nil
		}}
		script, fallback := NewScriptGenerator(model, 0).Generate(ctx, "   ", "", constant.LanguageEnglish)
		assert.True(t, fallback)
		assert.True(t, strings.HasPrefix(script, "Hello everyone,"))
		assert.Empty(t, model.prompts)
	})

	t.Run("instructions and language reach the prompt", func(t *testing.T) {
		model := &stubModel{respond: func(int, string) (string, error) {
			return narration("history"), nil
		}}
		NewScriptGenerator(model, 0).Generate(ctx, "Rome", "Be playful", constant.LanguageItalian)
		require.Len(t, model.systems, 1)
		assert.Contains(t, model.systems[0], "Italian")
		assert.Contains(t, model.systems[0], "Be playful")
		assert.Contains(t, model.prompts[0], "Rome")
	})
}

func TestScriptGenerator_GenerateBatch(t *testing.T) {
	model := &stubModel{respond: func(call int, prompt string) (string, error) {
		if call == 1 {
			return "", errors.New("provider down")
		}
		return narration(prompt[len(prompt)-6:]), nil
	}}
	gen := NewScriptGenerator(model, 0)

	results := gen.GenerateBatch(context.Background(), []ScriptInput{
		{Number: 1, Text: "Slide one"},
		{Number: 2, Text: "Slide two"},
		{Number: 3, Text: "Slide three"},
	}, "", constant.LanguageEnglish)

	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, i+1, r.Number)
		assert.NoError(t, ValidateScript(r.Script))
	}
	assert.False(t, results[0].Fallback)
	assert.True(t, results[1].Fallback)
	assert.Contains(t, results[1].Script, "Slide two")
	assert.False(t, results[2].Fallback)

	require.Len(t, model.prompts, 3)
	assert.NotContains(t, model.prompts[0], "follows slide")
	assert.Contains(t, model.prompts[1], "This slide follows slide 1.")
	assert.Contains(t, model.prompts[2], "This slide follows slide 2.")
}

func TestScriptGenerator_GenerateBatchStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	model := &stubModel{respond: func(int, string) (string, error) {
		cancel()
		return narration("the first slide"), nil
	}}
	gen := NewScriptGenerator(model, 0)

	results := gen.GenerateBatch(ctx, []ScriptInput{
		{Number: 1, Text: "Slide one"},
		{Number: 2, Text: "Slide two"},
		{Number: 3, Text: "Slide three"},
	}, "", constant.LanguageEnglish)

	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Number)
	assert.Len(t, model.prompts, 1)
}

func TestPause(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, pause(ctx, 0), context.Canceled)
	assert.ErrorIs(t, pause(ctx, 1e9), context.Canceled)
	assert.NoError(t, pause(context.Background(), 1))
}
