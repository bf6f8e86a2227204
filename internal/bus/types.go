// Package bus defines the message shapes shared by the HTTP entry point,
// the debounce coordinator, and the dispatcher.
package bus

// Message kind constants. Kind drives how the coordinator renders a batch
// entry into agent-facing text.
const (
	KindText       = "text"
	KindAudio      = "audio"
	KindDocument   = "document"
	KindImage      = "image"
	KindLocation   = "location"
	KindTransition = "channel_transition"
)

// InboundMessage is a single driver message as delivered by the chat
// webhook. Timestamp carries whichever encoding the upstream produced;
// ident.ParseTimestamp sorts it out.
type InboundMessage struct {
	Contact   string    `json:"contact"`
	Kind      string    `json:"kind"`
	Text      string    `json:"text,omitempty"`
	Timestamp string    `json:"timestamp,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	FileName  string    `json:"file_name,omitempty"`
	MediaURL  string    `json:"media_url,omitempty"`
	Location  *Location `json:"location,omitempty"`
	ReplyTo   *ReplyRef `json:"reply_to,omitempty"`
}

// Location is a shared-position payload from the chat channel.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
	Name      string  `json:"name,omitempty"`
}

// ReplyRef identifies the message a driver replied to. SentAt uses the
// channel's display layout (02/01/2006 15:04:05.000) and anchors the
// hour-precise negotiation lookup.
type ReplyRef struct {
	MessageID string `json:"message_id,omitempty"`
	Text      string `json:"text,omitempty"`
	SentAt    string `json:"sent_at,omitempty"`
}

// OutboundReply is the rendered agent response handed to the delivery
// gateway. When AudioURL is set the reply goes out as a voice message.
type OutboundReply struct {
	Contact   string `json:"contact"`
	Text      string `json:"text,omitempty"`
	AudioURL  string `json:"audio_url,omitempty"`
	AudioName string `json:"audio_name,omitempty"`
}

// WakeupRequest is the cross-process form of a debounce timer firing. A
// scheduler that cannot hold an in-process timer posts this back to the
// service entry point.
type WakeupRequest struct {
	Action       string  `json:"action"`
	Contact      string  `json:"contact"`
	FencingValue float64 `json:"fencingValue"`
	DelaySeconds float64 `json:"delaySeconds,omitempty"`
}

// ActionProcessAccumulated is the only wakeup action the entry point
// accepts.
const ActionProcessAccumulated = "processAccumulated"
