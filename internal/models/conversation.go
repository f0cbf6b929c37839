package models

import (
	"time"
	"unicode/utf8"
)

// PreviewLength is the maximum number of runes kept in LastMessagePreview.
const PreviewLength = 100

// Conversation is a pairwise thread between two users. Participant1 always
// sorts before Participant2 so a pair maps to exactly one row.
type Conversation struct {
	ID                 string     `json:"id" db:"id" bson:"_id"`
	Participant1       string     `json:"participant_1" db:"participant_1" bson:"participant1"`
	Participant2       string     `json:"participant_2" db:"participant_2" bson:"participant2"`
	ProjectID          *string    `json:"project_id,omitempty" db:"project_id" bson:"projectId,omitempty"`
	UnreadCountP1      int        `json:"unread_count_p1" db:"unread_count_p1" bson:"unreadCountP1"`
	UnreadCountP2      int        `json:"unread_count_p2" db:"unread_count_p2" bson:"unreadCountP2"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at" bson:"createdAt"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at" bson:"updatedAt"`
	LastMessageAt      *time.Time `json:"last_message_at,omitempty" db:"last_message_at" bson:"lastMessageAt,omitempty"`
	LastMessagePreview string     `json:"last_message_preview" db:"last_message_preview" bson:"lastMessagePreview"`
}

// CanonicalPair orders two user ids so that the lower one comes first.
func CanonicalPair(userA, userB string) (string, string) {
	if userA > userB {
		return userB, userA
	}
	return userA, userB
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID string) bool {
	return userID != "" && (c.Participant1 == userID || c.Participant2 == userID)
}

// OtherParticipant returns the participant that is not userID.
func (c *Conversation) OtherParticipant(userID string) string {
	if c.Participant1 == userID {
		return c.Participant2
	}
	return c.Participant1
}

// UnreadCountFor returns the unread counter belonging to userID.
func (c *Conversation) UnreadCountFor(userID string) int {
	switch userID {
	case c.Participant1:
		return c.UnreadCountP1
	case c.Participant2:
		return c.UnreadCountP2
	}
	return 0
}

// Preview truncates text to PreviewLength runes.
func Preview(text string) string {
	if utf8.RuneCountInString(text) <= PreviewLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:PreviewLength])
}
