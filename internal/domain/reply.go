package domain

type ReplyKind string

const (
	ReplyKindText          ReplyKind = "text"
	ReplyKindTextWithImage ReplyKind = "text_with_image"
)

// Reply is a composed answer for one event: text, optionally paired with an
// image. It is built per event, sent once and discarded.
type Reply struct {
	Text     string
	ImageURL string
}

func TextReply(text string) Reply {
	return Reply{Text: text}
}

func TextWithImageReply(text, imageURL string) Reply {
	return Reply{Text: text, ImageURL: imageURL}
}

func (r Reply) Kind() ReplyKind {
	if r.ImageURL != "" {
		return ReplyKindTextWithImage
	}
	return ReplyKindText
}
