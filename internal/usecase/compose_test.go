package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"companion-relay/internal/domain"
	"companion-relay/internal/integrations/openai"
)

type capturingLLM struct {
	answer    string
	err       error
	model     string
	captured  []domain.ChatMessage
	callCount int
}

func (c *capturingLLM) Chat(_ context.Context, model string, msgs []domain.ChatMessage) (string, error) {
	c.callCount++
	c.model = model
	c.captured = msgs
	return c.answer, c.err
}

var (
	goodnightSet = []string{"https://img.example/gn/1.jpg", "https://img.example/gn/2.jpg", "https://img.example/gn/3.jpg"}
	cheerUpSet   = []string{"https://img.example/cu/1.jpg", "https://img.example/cu/2.jpg"}
)

func newTestComposer(t *testing.T, llm LLMClient, variant Variant) *Composer {
	t.Helper()
	c, err := NewComposer(llm, ComposerOptions{
		Variant:         variant,
		GoodnightImages: goodnightSet,
		CheerUpImages:   cheerUpSet,
	})
	require.NoError(t, err)
	return c
}

func TestParseVariant(t *testing.T) {
	v, err := ParseVariant("")
	require.NoError(t, err)
	require.Equal(t, VariantPlain, v)

	v, err = ParseVariant(" MOOD ")
	require.NoError(t, err)
	require.Equal(t, VariantMood, v)

	_, err = ParseVariant("deluxe")
	require.Error(t, err)
}

func TestNewComposer_NilLLM(t *testing.T) {
	_, err := NewComposer(nil, ComposerOptions{})
	require.Error(t, err)
}

func TestCompose_UnpaidAlwaysUpsell(t *testing.T) {
	texts := []string{"こんにちは", "おやすみ", "もう無理", "", "GOOD NIGHT"}
	for _, variant := range []Variant{VariantPlain, VariantCustom, VariantMood} {
		for _, text := range texts {
			llm := &capturingLLM{answer: "should not be used"}
			c := newTestComposer(t, llm, variant)

			reply, rule, err := c.Compose(context.Background(), false, text)
			require.NoError(t, err)
			require.Equal(t, RuleUpsell, rule)
			require.Equal(t, domain.TextReply(DefaultUpsellText), reply)
			require.Zero(t, llm.callCount, "unpaid users must not reach the completion API")
		}
	}
}

func TestCompose_Goodnight(t *testing.T) {
	llm := &capturingLLM{}
	c := newTestComposer(t, llm, VariantMood)

	for i := 0; i < 50; i++ {
		reply, rule, err := c.Compose(context.Background(), true, "そろそろ寝るね、おやすみ！")
		require.NoError(t, err)
		require.Equal(t, RuleGoodnight, rule)
		require.Equal(t, domain.ReplyKindTextWithImage, reply.Kind())
		require.Equal(t, GoodnightReplyText, reply.Text)
		require.Contains(t, goodnightSet, reply.ImageURL)
	}
	require.Zero(t, llm.callCount)
}

func TestCompose_GoodnightCaseFolded(t *testing.T) {
	c := newTestComposer(t, &capturingLLM{}, VariantMood)
	_, rule, err := c.Compose(context.Background(), true, "Good Night!")
	require.NoError(t, err)
	require.Equal(t, RuleGoodnight, rule)
}

func TestCompose_CheerUp(t *testing.T) {
	for _, text := range []string{"今日つらい", "仕事で疲れた…", "もう無理かも", "やる気出ない", "so TIRED"} {
		llm := &capturingLLM{}
		c := newTestComposer(t, llm, VariantMood)

		reply, rule, err := c.Compose(context.Background(), true, text)
		require.NoError(t, err, text)
		require.Equal(t, RuleCheerUp, rule, text)
		require.Equal(t, CheerUpReplyText, reply.Text)
		require.Contains(t, cheerUpSet, reply.ImageURL)
		require.Zero(t, llm.callCount)
	}
}

func TestCompose_GoodnightBeforeCheerUp(t *testing.T) {
	c := newTestComposer(t, &capturingLLM{}, VariantMood)
	_, rule, err := c.Compose(context.Background(), true, "疲れたからおやすみ")
	require.NoError(t, err)
	require.Equal(t, RuleGoodnight, rule)
}

func TestCompose_UsesInjectedRandomIndex(t *testing.T) {
	c, err := NewComposer(&capturingLLM{}, ComposerOptions{
		Variant:         VariantMood,
		GoodnightImages: goodnightSet,
		Intn: func(n int) int {
			require.Equal(t, len(goodnightSet), n)
			return 2
		},
	})
	require.NoError(t, err)
	reply, _, err := c.Compose(context.Background(), true, "おやすみ")
	require.NoError(t, err)
	require.Equal(t, goodnightSet[2], reply.ImageURL)
}

func TestCompose_KeywordWithoutImagesFallsBackToText(t *testing.T) {
	c, err := NewComposer(&capturingLLM{}, ComposerOptions{Variant: VariantMood})
	require.NoError(t, err)
	reply, rule, err := c.Compose(context.Background(), true, "おやすみ")
	require.NoError(t, err)
	require.Equal(t, RuleGoodnight, rule)
	require.Equal(t, domain.TextReply(GoodnightReplyText), reply)
}

func TestCompose_PlainVariantHasNoKeywordStage(t *testing.T) {
	llm := &capturingLLM{answer: "おやすみ〜"}
	c := newTestComposer(t, llm, VariantPlain)

	reply, rule, err := c.Compose(context.Background(), true, "おやすみ")
	require.NoError(t, err)
	require.Equal(t, RuleCompletion, rule)
	require.Equal(t, domain.TextReply("おやすみ〜"), reply)
	require.Equal(t, 1, llm.callCount)
}

func TestCompose_CompletionPrompt(t *testing.T) {
	llm := &capturingLLM{answer: "  そうなんだ！ "}
	c := newTestComposer(t, llm, VariantMood)

	reply, rule, err := c.Compose(context.Background(), true, "Today I ate Ramen")
	require.NoError(t, err)
	require.Equal(t, RuleCompletion, rule)
	require.Equal(t, "  そうなんだ！ ", reply.Text, "completion output is used verbatim")
	require.Equal(t, DefaultModel, llm.model)
	require.Equal(t, []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: DefaultPersonaPrompt},
		{Role: domain.RoleUser, Content: "Today I ate Ramen"},
	}, llm.captured, "user turn keeps the original casing")
}

func TestCompose_CompletionFailureYieldsApology(t *testing.T) {
	upstream := &openai.HTTPStatusError{StatusCode: 500, URL: "https://api.openai.com/v1/chat/completions"}
	llm := &capturingLLM{err: upstream}
	c := newTestComposer(t, llm, VariantPlain)

	reply, rule, err := c.Compose(context.Background(), true, "hello")
	require.Equal(t, RuleApology, rule)
	require.Equal(t, domain.TextReply(DefaultApologyText), reply)

	var usecaseErr *Error
	require.ErrorAs(t, err, &usecaseErr)
	require.Equal(t, ErrorCompletion, usecaseErr.Code)
	require.True(t, errors.Is(err, upstream))
}

func TestCompose_CustomOverrides(t *testing.T) {
	llm := &capturingLLM{err: errors.New("down")}
	c, err := NewComposer(llm, ComposerOptions{
		Variant:       VariantCustom,
		Model:         "gpt-4o-mini",
		PersonaPrompt: "You are a cheerful friend.",
		UpsellText:    "Subscribe at https://example.com",
		ApologyText:   "Sorry, try again!",
	})
	require.NoError(t, err)

	reply, _, _ := c.Compose(context.Background(), false, "hi")
	require.Equal(t, "Subscribe at https://example.com", reply.Text)

	reply, _, _ = c.Compose(context.Background(), true, "hi")
	require.Equal(t, "Sorry, try again!", reply.Text)
	require.Equal(t, "gpt-4o-mini", llm.model)
	require.Equal(t, "You are a cheerful friend.", llm.captured[0].Content)
}
