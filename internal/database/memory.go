package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"investafrik-messaging/internal/models"
	"investafrik-messaging/internal/utils"

	"github.com/google/uuid"
)

type pairKey struct{ p1, p2 string }

type reactionKey struct{ messageID, userID string }

// MemoryStore keeps everything in process memory behind a single lock.
// It backs DB_TYPE=memory and the unit tests of the layers above storage.
type MemoryStore struct {
	mu            sync.Mutex
	conversations map[string]*models.Conversation
	pairs         map[pairKey]string
	messages      map[string]*models.Message
	byConv        map[string][]string
	reactions     map[reactionKey]*models.MessageReaction
	notifications map[string]*models.Notification
	closed        bool
	now           func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*models.Conversation),
		pairs:         make(map[pairKey]string),
		messages:      make(map[string]*models.Message),
		byConv:        make(map[string][]string),
		reactions:     make(map[reactionKey]*models.MessageReaction),
		notifications: make(map[string]*models.Notification),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) GetOrCreateConversation(ctx context.Context, userA, userB string, projectID *string) (*models.Conversation, bool, error) {
	if err := validatePair(userA, userB); err != nil {
		return nil, false, err
	}
	p1, p2 := models.CanonicalPair(userA, userB)

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.pairs[pairKey{p1, p2}]; ok {
		c := *s.conversations[id]
		return &c, false, nil
	}

	now := s.now()
	conv := &models.Conversation{
		ID:           uuid.New().String(),
		Participant1: p1,
		Participant2: p2,
		ProjectID:    projectID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.conversations[conv.ID] = conv
	s.pairs[pairKey{p1, p2}] = conv.ID

	c := *conv
	return &c, true, nil
}

func (s *MemoryStore) GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, utils.NewNotFoundError("conversation")
	}
	c := *conv
	return &c, nil
}

func (s *MemoryStore) PostMessage(ctx context.Context, in models.NewMessage) (*models.Message, error) {
	in, err := normalizeMessage(in)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[in.ConversationID]
	if !ok {
		return nil, utils.NewNotFoundError("conversation")
	}
	if !conv.HasParticipant(in.SenderID) {
		return nil, utils.NewNotParticipantError()
	}

	msg := buildMessage(uuid.New().String(), in, s.now())
	s.messages[msg.ID] = msg
	s.byConv[conv.ID] = append(s.byConv[conv.ID], msg.ID)

	if conv.LastMessageAt == nil || !msg.SentAt.Before(*conv.LastMessageAt) {
		sentAt := msg.SentAt
		conv.LastMessageAt = &sentAt
		conv.LastMessagePreview = msg.PreviewText()
	}
	if conv.Participant1 == in.SenderID {
		conv.UnreadCountP2++
	} else {
		conv.UnreadCountP1++
	}
	conv.UpdatedAt = msg.SentAt

	out := *msg
	return &out, nil
}

func (s *MemoryStore) GetMessage(ctx context.Context, messageID string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[messageID]
	if !ok || msg.IsDeleted {
		return nil, utils.NewNotFoundError("message")
	}
	out := *msg
	return &out, nil
}

func (s *MemoryStore) DeleteMessage(ctx context.Context, messageID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[messageID]
	if !ok {
		return utils.NewNotFoundError("message")
	}
	if msg.SenderID != userID {
		return utils.NewAppError(utils.ErrForbidden, "only the sender can delete a message", nil)
	}
	if msg.IsDeleted {
		return nil
	}
	msg.IsDeleted = true

	conv := s.conversations[msg.ConversationID]
	conv.LastMessageAt = nil
	conv.LastMessagePreview = ""
	for _, m := range s.sortedMessages(conv.ID) {
		if m.IsDeleted {
			continue
		}
		if conv.LastMessageAt == nil || !m.SentAt.Before(*conv.LastMessageAt) {
			sentAt := m.SentAt
			conv.LastMessageAt = &sentAt
			conv.LastMessagePreview = m.PreviewText()
		}
	}
	conv.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) MarkConversationRead(ctx context.Context, conversationID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return utils.NewNotFoundError("conversation")
	}
	if !conv.HasParticipant(userID) {
		return utils.NewNotParticipantError()
	}

	now := s.now()
	for _, id := range s.byConv[conversationID] {
		m := s.messages[id]
		if m.SenderID != userID && !m.IsRead {
			readAt := now
			m.IsRead = true
			m.ReadAt = &readAt
		}
	}
	if conv.Participant1 == userID {
		conv.UnreadCountP1 = 0
	} else {
		conv.UnreadCountP2 = 0
	}
	return nil
}

func (s *MemoryStore) React(ctx context.Context, messageID, userID string, reaction models.ReactionType) error {
	if !reaction.Valid() {
		return utils.NewValidationError("unknown reaction type")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[messageID]
	if !ok || msg.IsDeleted {
		return utils.NewNotFoundError("message")
	}
	if !s.conversations[msg.ConversationID].HasParticipant(userID) {
		return utils.NewNotParticipantError()
	}

	key := reactionKey{messageID, userID}
	if existing, ok := s.reactions[key]; ok {
		existing.Type = reaction
		return nil
	}
	s.reactions[key] = &models.MessageReaction{
		MessageID: messageID,
		UserID:    userID,
		Type:      reaction,
		CreatedAt: s.now(),
	}
	return nil
}

// Reactions returns the reactions recorded on a message.
func (s *MemoryStore) Reactions(messageID string) []models.MessageReaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.MessageReaction
	for key, r := range s.reactions {
		if key.messageID == messageID {
			out = append(out, *r)
		}
	}
	return out
}

// Messages returns the non-deleted messages of a conversation ordered by SentAt.
func (s *MemoryStore) Messages(conversationID string) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Message
	for _, m := range s.sortedMessages(conversationID) {
		if !m.IsDeleted {
			out = append(out, *m)
		}
	}
	return out
}

func (s *MemoryStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	if err := validateNotification(n); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	stored := *n
	s.notifications[n.ID] = &stored
	return nil
}

func (s *MemoryStore) MarkNotificationRead(ctx context.Context, notificationID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[notificationID]
	if !ok || n.UserID != userID {
		return false, nil
	}
	if !n.IsRead {
		readAt := s.now()
		n.IsRead = true
		n.ReadAt = &readAt
	}
	return true, nil
}

// Notification returns a copy of a stored notification.
func (s *MemoryStore) Notification(notificationID string) (models.Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[notificationID]
	if !ok {
		return models.Notification{}, false
	}
	return *n, true
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return utils.NewAppError(utils.ErrStoreUnavailable, "memory store is closed", nil)
	}
	return nil
}

func (s *MemoryStore) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// sortedMessages must be called with s.mu held.
func (s *MemoryStore) sortedMessages(conversationID string) []*models.Message {
	ids := s.byConv[conversationID]
	out := make([]*models.Message, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.messages[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SentAt.Before(out[j].SentAt) })
	return out
}
