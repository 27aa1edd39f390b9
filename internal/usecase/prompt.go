package usecase

import (
	"strings"

	"companion-relay/internal/domain"
)

const (
	DefaultModel = "gpt-4"

	DefaultPersonaPrompt = "あなたは彼女です。ため口で話してください。"

	DefaultUpsellText = "このサービスは月額制です🌙 ご利用には登録が必要です。\n" +
		"↓こちらから登録をお願いします。\n" +
		"https://manabuyts.stores.jp"

	DefaultApologyText = "今ちょっとお返事できなかったみたい…もう一回話しかけて？🥺"

	GoodnightReplyText = "おやすみ〜🌙 今日もおつかれさま。いい夢見てね💤"
	CheerUpReplyText   = "無理しすぎないでね…いつでもそばにいるよ。ぎゅーってしてあげる🫂"
)

// Triggers are matched as substrings of the lowercased message text, so they
// must be lowercase themselves.
var (
	goodnightTriggers = []string{"おやすみ", "good night", "goodnight"}

	distressTriggers = []string{
		"疲れた",
		"つかれた",
		"つらい",
		"辛い",
		"しんどい",
		"もう無理",
		"もうむり",
		"やる気出ない",
		"やる気でない",
		"tired",
	}
)

// buildPromptMessages returns the persona turn followed by the user's text as
// the only conversational turn.
func buildPromptMessages(persona, text string) []domain.ChatMessage {
	return []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: strings.TrimSpace(persona)},
		{Role: domain.RoleUser, Content: text},
	}
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}
