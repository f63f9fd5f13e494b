package service

import (
	"sort"
	"sync"

	"anoa.com/friendline/internal/entity"
	"github.com/google/uuid"
)

// Log is the in-memory, ordered view of one conversation. Entries are keyed
// by message id, so replaying the same insert or reloading history after a
// live event never produces duplicates.
type Log struct {
	mu    sync.RWMutex
	items []entity.Message
	ids   map[uuid.UUID]struct{}
}

func NewLog() *Log {
	return &Log{ids: map[uuid.UUID]struct{}{}}
}

// Append inserts m at its (CreatedAt, ID) position and reports whether it was new.
func (l *Log) Append(m entity.Message) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.insert(m)
}

// Merge appends every unseen message and returns how many were added.
func (l *Log) Merge(messages []entity.Message) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	added := 0
	for _, m := range messages {
		if l.insert(m) {
			added++
		}
	}
	return added
}

func (l *Log) insert(m entity.Message) bool {
	if _, ok := l.ids[m.ID]; ok {
		return false
	}
	l.ids[m.ID] = struct{}{}

	i := sort.Search(len(l.items), func(i int) bool {
		return m.Before(&l.items[i])
	})
	l.items = append(l.items, entity.Message{})
	copy(l.items[i+1:], l.items[i:])
	l.items[i] = m
	return true
}

func (l *Log) Snapshot() []entity.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]entity.Message, len(l.items))
	copy(out, l.items)
	return out
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}
