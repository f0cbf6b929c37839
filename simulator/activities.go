package simulator

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"
)

type inboundFrame struct {
	Type    string `json:"type"`
	Error   string `json:"error"`
	Message struct {
		Sender struct {
			ID string `json:"id"`
		} `json:"sender"`
		SentAt time.Time `json:"sent_at"`
	} `json:"message"`
}

// simulateTraffic has every user send concurrently while reading what the
// other side sends, then waits for deliveries to settle.
func (s *Simulator) simulateTraffic(ctx context.Context) error {
	var readers errgroup.Group
	for _, pair := range s.pairs {
		for _, user := range pair.users {
			readers.Go(func() error {
				s.readLoop(user)
				return nil
			})
		}
	}

	err := s.forEachUser(ctx, s.sendLoop)
	if err == nil {
		s.awaitDeliveries(ctx)
	}
	s.disconnectAll()
	readers.Wait()
	return err
}

func (s *Simulator) sendLoop(ctx context.Context, pair *simulatedPair, user *SimulatedUser) error {
	interval := s.config.SendInterval
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 0; i < user.toSend; i++ {
		if rand.Float64() < s.config.TypingRate {
			if err := user.conn.WriteJSON(map[string]interface{}{"type": "typing", "is_typing": true}); err != nil {
				s.errors.Add(1)
				return fmt.Errorf("%s typing: %w", user.Name, err)
			}
		}
		frame := map[string]interface{}{
			"type":    "chat_message",
			"message": fmt.Sprintf("message %d from %s", i, user.Name),
		}
		if err := user.conn.WriteJSON(frame); err != nil {
			s.errors.Add(1)
			return fmt.Errorf("%s send in %s: %w", user.Name, pair.conversationID, err)
		}
		user.sent.Add(1)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// readLoop counts chat messages from the other participant until the
// connection is closed.
func (s *Simulator) readLoop(user *SimulatedUser) {
	for {
		var frame inboundFrame
		if err := user.conn.ReadJSON(&frame); err != nil {
			return
		}
		switch {
		case frame.Error != "":
			s.errors.Add(1)
			s.logger.Warn("engine reported an error", "user", user.Name, "error", frame.Error)
		case frame.Type == "chat_message" && frame.Message.Sender.ID != user.ID:
			user.received.Add(1)
			s.recordLatency(time.Since(frame.Message.SentAt))
		}
	}
}

// awaitDeliveries polls until every user has received everything the other
// side sent, or SettleTimeout passes.
func (s *Simulator) awaitDeliveries(ctx context.Context) {
	deadline := time.NewTimer(s.config.SettleTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for !s.delivered() {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			s.logger.Warn("deliveries did not settle", "timeout", s.config.SettleTimeout)
			return
		case <-ticker.C:
		}
	}
}

func (s *Simulator) delivered() bool {
	for _, pair := range s.pairs {
		for j, user := range pair.users {
			if user.received.Load() < pair.users[1-j].sent.Load() {
				return false
			}
		}
	}
	return true
}
