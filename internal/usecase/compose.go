package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"companion-relay/internal/domain"
)

type Variant string

const (
	VariantPlain  Variant = "plain"
	VariantCustom Variant = "custom"
	VariantMood   Variant = "mood"
)

func ParseVariant(s string) (Variant, error) {
	switch v := Variant(strings.ToLower(strings.TrimSpace(s))); v {
	case "":
		return VariantPlain, nil
	case VariantPlain, VariantCustom, VariantMood:
		return v, nil
	default:
		return "", fmt.Errorf("usecase: unknown variant %q", s)
	}
}

// keywordStage reports whether the variant runs keyword shortcuts before
// falling through to the completion call.
func (v Variant) keywordStage() bool {
	return v == VariantMood
}

// Rule names the branch that produced a reply.
type Rule string

const (
	RuleUpsell     Rule = "upsell"
	RuleGoodnight  Rule = "goodnight"
	RuleCheerUp    Rule = "cheerup"
	RuleCompletion Rule = "completion"
	RuleApology    Rule = "apology"
)

type LLMClient interface {
	Chat(ctx context.Context, model string, messages []domain.ChatMessage) (string, error)
}

// ComposerOptions is the immutable reply configuration. Empty strings fall
// back to the built-in defaults.
type ComposerOptions struct {
	Variant         Variant
	Model           string
	PersonaPrompt   string
	UpsellText      string
	ApologyText     string
	GoodnightImages []string
	CheerUpImages   []string
	// Intn picks an index in [0, n). Defaults to math/rand/v2.IntN.
	Intn func(n int) int
}

type keywordRule struct {
	rule     Rule
	triggers []string
	text     string
	images   []string
}

// Composer decides the reply for one message. Keyword rules are evaluated in
// order; goodnight wins over cheer-up.
type Composer struct {
	llm      LLMClient
	variant  Variant
	model    string
	persona  string
	upsell   string
	apology  string
	keywords []keywordRule
	intn     func(n int) int
}

func NewComposer(llm LLMClient, opts ComposerOptions) (*Composer, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	variant := opts.Variant
	if variant == "" {
		variant = VariantPlain
	}
	c := &Composer{
		llm:     llm,
		variant: variant,
		model:   orDefault(opts.Model, DefaultModel),
		persona: orDefault(opts.PersonaPrompt, DefaultPersonaPrompt),
		upsell:  orDefault(opts.UpsellText, DefaultUpsellText),
		apology: orDefault(opts.ApologyText, DefaultApologyText),
		intn:    opts.Intn,
	}
	if c.intn == nil {
		c.intn = rand.IntN
	}
	if variant.keywordStage() {
		c.keywords = []keywordRule{
			{rule: RuleGoodnight, triggers: goodnightTriggers, text: GoodnightReplyText, images: cloneStrings(opts.GoodnightImages)},
			{rule: RuleCheerUp, triggers: distressTriggers, text: CheerUpReplyText, images: cloneStrings(opts.CheerUpImages)},
		}
	}
	return c, nil
}

// Compose returns the reply for text given the sender's entitlement. A
// completion failure still yields a usable apology reply alongside a
// *Error with ErrorCompletion, so callers can log it and send the reply.
func (c *Composer) Compose(ctx context.Context, paid bool, text string) (domain.Reply, Rule, error) {
	if !paid {
		return domain.TextReply(c.upsell), RuleUpsell, nil
	}

	if len(c.keywords) > 0 {
		folded := strings.ToLower(text)
		for _, kw := range c.keywords {
			if containsAny(folded, kw.triggers) {
				return c.keywordReply(kw), kw.rule, nil
			}
		}
	}

	answer, err := c.llm.Chat(ctx, c.model, buildPromptMessages(c.persona, text))
	if err != nil {
		return domain.TextReply(c.apology), RuleApology, newError(ErrorCompletion, "openai_error", err)
	}
	return domain.TextReply(answer), RuleCompletion, nil
}

func (c *Composer) keywordReply(kw keywordRule) domain.Reply {
	if len(kw.images) == 0 {
		return domain.TextReply(kw.text)
	}
	return domain.TextWithImageReply(kw.text, kw.images[c.intn(len(kw.images))])
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func cloneStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
