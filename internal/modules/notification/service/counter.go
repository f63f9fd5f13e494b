package service

import (
	"context"
	"sync"

	"anoa.com/friendline/internal/entity"
	notifRepo "anoa.com/friendline/internal/modules/notification/repository"
	"anoa.com/friendline/pkg/apperror"
	"github.com/google/uuid"
)

// Counter is one session's view of a user's unread state: the navigation
// badge (every type except message) and per-conversation message counts.
// Refresh re-derives both from storage; MarkRead adjusts them in place.
type Counter struct {
	repo   notifRepo.NotificationRepository
	userID uuid.UUID

	mu       sync.Mutex
	badge    int64
	messages map[uuid.UUID]int64
}

func NewCounter(repo notifRepo.NotificationRepository, userID uuid.UUID) *Counter {
	return &Counter{repo: repo, userID: userID, messages: map[uuid.UUID]int64{}}
}

func (c *Counter) Refresh(ctx context.Context) error {
	badge, err := c.repo.CountUnreadBadge(ctx, c.userID)
	if err != nil {
		return err
	}
	messages, err := c.repo.CountUnreadMessages(ctx, c.userID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.badge = badge
	c.messages = messages
	c.mu.Unlock()
	return nil
}

func (c *Counter) Count() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.badge
}

func (c *Counter) MessageUnread(conversationID uuid.UUID) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messages[conversationID]
}

func (c *Counter) MessageUnreadTotal() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total int64
	for _, n := range c.messages {
		total += n
	}
	return total
}

// MessageUnreadByConversation returns a copy safe to hand to other goroutines.
func (c *Counter) MessageUnreadByConversation() map[uuid.UUID]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[uuid.UUID]int64, len(c.messages))
	for id, n := range c.messages {
		out[id] = n
	}
	return out
}

// MarkRead flips one notification and decrements the matching counter by
// exactly one, never below zero. A notification that was already read leaves
// the counters untouched.
func (c *Counter) MarkRead(ctx context.Context, notificationID uuid.UUID) error {
	n, err := c.repo.FindByID(ctx, notificationID)
	if err != nil {
		return err
	}
	if n.RecipientID != c.userID {
		return apperror.Wrap(apperror.ErrNotFound, "notification not found")
	}

	affected, err := c.repo.MarkRead(ctx, notificationID, c.userID)
	if err != nil {
		return err
	}
	if affected == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if n.Type == entity.NotificationMessage && n.ConversationID != nil {
		if c.messages[*n.ConversationID] > 0 {
			c.messages[*n.ConversationID]--
		}
		return nil
	}
	if c.badge > 0 {
		c.badge--
	}
	return nil
}

// ClearConversation zeroes one conversation after it was marked read in storage.
func (c *Counter) ClearConversation(conversationID uuid.UUID) {
	c.mu.Lock()
	delete(c.messages, conversationID)
	c.mu.Unlock()
}

// ClearBadge zeroes the badge after a mark-all-read.
func (c *Counter) ClearBadge() {
	c.mu.Lock()
	c.badge = 0
	c.mu.Unlock()
}
