package domain

const (
	EventTypeMessage = "message"
	MessageTypeText  = "text"
)

// WebhookPayload is the batch envelope LINE posts to the webhook endpoint.
type WebhookPayload struct {
	Destination string         `json:"destination"`
	Events      []InboundEvent `json:"events"`
}

// InboundEvent is a single webhook event. Only the fields the relay reads
// are decoded.
type InboundEvent struct {
	Type            string           `json:"type"`
	WebhookEventID  string           `json:"webhookEventId"`
	Message         *EventMessage    `json:"message,omitempty"`
	Source          EventSource      `json:"source"`
	DeliveryContext *DeliveryContext `json:"deliveryContext,omitempty"`
}

type EventMessage struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Text string `json:"text"`
}

type EventSource struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

type DeliveryContext struct {
	IsRedelivery bool `json:"isRedelivery"`
}

// IsTextMessage reports whether the event carries a text message from an
// identifiable user.
func (e InboundEvent) IsTextMessage() bool {
	return e.Type == EventTypeMessage && e.Message != nil && e.Message.Type == MessageTypeText
}

// IsRedelivery reports whether LINE flagged the event as a redelivery.
func (e InboundEvent) IsRedelivery() bool {
	return e.DeliveryContext != nil && e.DeliveryContext.IsRedelivery
}
