package models

import "time"

type MessageType string

const (
	MessageText   MessageType = "text"
	MessageImage  MessageType = "image"
	MessageFile   MessageType = "file"
	MessageSystem MessageType = "system"
)

// Valid reports whether t is one of the known message types.
func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageFile, MessageSystem:
		return true
	}
	return false
}

// Message is a single entry in a conversation. Content and SentAt never
// change after creation; only the read and delete flags do.
type Message struct {
	ID             string      `json:"id" db:"id" bson:"_id"`
	ConversationID string      `json:"conversation_id" db:"conversation_id" bson:"conversationId"`
	SenderID       string      `json:"sender_id" db:"sender_id" bson:"senderId"`
	Content        string      `json:"content" db:"content" bson:"content"`
	Type           MessageType `json:"message_type" db:"message_type" bson:"messageType"`
	AttachmentRef  *string     `json:"attachment,omitempty" db:"attachment" bson:"attachment,omitempty"`
	AttachmentName string      `json:"attachment_name,omitempty" db:"attachment_name" bson:"attachmentName"`
	AttachmentSize *int64      `json:"attachment_size,omitempty" db:"attachment_size" bson:"attachmentSize,omitempty"`
	IsRead         bool        `json:"is_read" db:"is_read" bson:"isRead"`
	ReadAt         *time.Time  `json:"read_at,omitempty" db:"read_at" bson:"readAt,omitempty"`
	IsDeleted      bool        `json:"-" db:"is_deleted" bson:"isDeleted"`
	SentAt         time.Time   `json:"sent_at" db:"sent_at" bson:"sentAt"`
}

// Attachment references a file stored outside of the messaging core.
type Attachment struct {
	Ref  string
	Name string
	Size int64
}

// NewMessage is the input to a store's PostMessage.
type NewMessage struct {
	ConversationID string
	SenderID       string
	Content        string
	Type           MessageType
	Attachment     *Attachment
}

// PreviewText is what a conversation shows for this message in its listing.
func (m *Message) PreviewText() string {
	if m.Content == "" && m.AttachmentName != "" {
		return Preview(m.AttachmentName)
	}
	return Preview(m.Content)
}

type ReactionType string

const (
	ReactionLike  ReactionType = "like"
	ReactionLove  ReactionType = "love"
	ReactionLaugh ReactionType = "laugh"
	ReactionWow   ReactionType = "wow"
	ReactionSad   ReactionType = "sad"
	ReactionAngry ReactionType = "angry"
)

func (r ReactionType) Valid() bool {
	switch r {
	case ReactionLike, ReactionLove, ReactionLaugh, ReactionWow, ReactionSad, ReactionAngry:
		return true
	}
	return false
}

// MessageReaction is unique per (message, user); reacting again replaces the type.
type MessageReaction struct {
	MessageID string       `json:"message_id" db:"message_id" bson:"messageId"`
	UserID    string       `json:"user_id" db:"user_id" bson:"userId"`
	Type      ReactionType `json:"reaction_type" db:"reaction_type" bson:"reactionType"`
	CreatedAt time.Time    `json:"created_at" db:"created_at" bson:"createdAt"`
}
