package line

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"companion-relay/internal/domain"
)

const (
	defaultBaseURL = "https://api.line.me"
	defaultTimeout = 10 * time.Second
	pushPath       = "/v2/bot/message/push"
)

const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
)

// Message is one part of a push request. Text parts set Text; image parts set
// both content URLs.
type Message struct {
	Type               string `json:"type"`
	Text               string `json:"text"`
	OriginalContentURL string `json:"originalContentUrl"`
	PreviewImageURL    string `json:"previewImageUrl"`
}

type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type imageMessage struct {
	Type               string `json:"type"`
	OriginalContentURL string `json:"originalContentUrl"`
	PreviewImageURL    string `json:"previewImageUrl"`
}

// MarshalJSON emits only the fields of the message's type. A text part
// always carries "text", even when empty.
func (m Message) MarshalJSON() ([]byte, error) {
	switch m.Type {
	case MessageTypeText:
		return json.Marshal(textMessage{Type: m.Type, Text: m.Text})
	case MessageTypeImage:
		return json.Marshal(imageMessage{Type: m.Type, OriginalContentURL: m.OriginalContentURL, PreviewImageURL: m.PreviewImageURL})
	default:
		return nil, fmt.Errorf("line: unsupported message type %q", m.Type)
	}
}

type pushRequest struct {
	To       string    `json:"to"`
	Messages []Message `json:"messages"`
}

// HTTPStatusError captures non-2xx responses from the Messaging API.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("line: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client pushes messages to users through the LINE Messaging API.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	accessToken string
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a push client authenticated with the channel access token.
func NewClient(accessToken string, opts ...Option) (*Client, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return nil, errors.New("line: channel access token must not be empty")
	}
	c := &Client{
		baseURL:     defaultBaseURL,
		httpClient:  &http.Client{Timeout: defaultTimeout},
		accessToken: accessToken,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func pushURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	return base + pushPath
}

// MessagesFor converts a reply into push message parts: the text, then the
// image when present.
func MessagesFor(reply domain.Reply) []Message {
	msgs := []Message{{Type: MessageTypeText, Text: reply.Text}}
	if reply.Kind() == domain.ReplyKindTextWithImage {
		msgs = append(msgs, Message{
			Type:               MessageTypeImage,
			OriginalContentURL: reply.ImageURL,
			PreviewImageURL:    reply.ImageURL,
		})
	}
	return msgs
}

// Push sends the reply to userID in a single push call.
func (c *Client) Push(ctx context.Context, userID string, reply domain.Reply) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("line: recipient must not be empty")
	}

	body, err := json.Marshal(pushRequest{To: userID, Messages: MessagesFor(reply)})
	if err != nil {
		return fmt.Errorf("line: marshal push request: %w", err)
	}

	url := pushURL(c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("line: create push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	httpClient := c.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	res, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("line: push request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &HTTPStatusError{StatusCode: res.StatusCode, URL: url, Body: string(buf)}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<16))
	return nil
}
