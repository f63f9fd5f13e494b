package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Conversation struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ParticipantA  uuid.UUID  `gorm:"type:uuid;not null;index" json:"participant_a"`
	ParticipantB  uuid.UUID  `gorm:"type:uuid;not null;index" json:"participant_b"`
	PairKey       string     `gorm:"size:80;not null;uniqueIndex" json:"-"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (c *Conversation) TableName() string {
	return TableConversations
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == uuid.Nil {
		c.ID, err = uuid.NewV7()
	}
	if c.PairKey == "" {
		c.PairKey = PairKey(c.ParticipantA, c.ParticipantB)
	}
	return
}

// Participants returns the pair in creation order.
func (c *Conversation) Participants() [2]uuid.UUID {
	return [2]uuid.UUID{c.ParticipantA, c.ParticipantB}
}

func (c *Conversation) HasParticipant(id uuid.UUID) bool {
	return c.ParticipantA == id || c.ParticipantB == id
}

// Counterpart returns the other participant, or uuid.Nil when id is not a participant.
func (c *Conversation) Counterpart(id uuid.UUID) uuid.UUID {
	switch id {
	case c.ParticipantA:
		return c.ParticipantB
	case c.ParticipantB:
		return c.ParticipantA
	}
	return uuid.Nil
}

// PairKey is order-independent: PairKey(a, b) == PairKey(b, a).
func PairKey(a, b uuid.UUID) string {
	x, y := a.String(), b.String()
	if strings.Compare(x, y) > 0 {
		x, y = y, x
	}
	return x + ":" + y
}
