package entity

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

const virtualPrefix = "virtual-"

var ErrInvalidConversationRef = errors.New("invalid conversation reference")

// ConversationRef points either at a stored conversation or at a counterpart
// profile the caller has not exchanged messages with yet.
type ConversationRef struct {
	id      uuid.UUID
	virtual bool
}

func RealConversation(id uuid.UUID) ConversationRef {
	return ConversationRef{id: id}
}

func VirtualConversation(counterpartID uuid.UUID) ConversationRef {
	return ConversationRef{id: counterpartID, virtual: true}
}

// ParseConversationRef accepts "<uuid>" or "virtual-<uuid>".
func ParseConversationRef(s string) (ConversationRef, error) {
	virtual := strings.HasPrefix(s, virtualPrefix)
	raw := strings.TrimPrefix(s, virtualPrefix)

	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return ConversationRef{}, ErrInvalidConversationRef
	}
	return ConversationRef{id: id, virtual: virtual}, nil
}

func (r ConversationRef) IsVirtual() bool {
	return r.virtual
}

func (r ConversationRef) IsZero() bool {
	return r.id == uuid.Nil
}

// ConversationID is uuid.Nil for virtual refs.
func (r ConversationRef) ConversationID() uuid.UUID {
	if r.virtual {
		return uuid.Nil
	}
	return r.id
}

// CounterpartID is uuid.Nil for real refs.
func (r ConversationRef) CounterpartID() uuid.UUID {
	if r.virtual {
		return r.id
	}
	return uuid.Nil
}

func (r ConversationRef) String() string {
	if r.virtual {
		return virtualPrefix + r.id.String()
	}
	return r.id.String()
}

func (r ConversationRef) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *ConversationRef) UnmarshalText(b []byte) error {
	parsed, err := ParseConversationRef(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
