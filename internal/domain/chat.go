package domain

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn sent to the completion API. The relay never keeps
// history, so a request holds the persona turn and the user's text only.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
