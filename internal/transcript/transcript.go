// Package transcript keeps the chat history shown for each student.
package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gaspardpetit/shittim/internal/store"
)

const keyPrefix = "transcript:"

// DefaultLimit bounds the messages kept per student.
const DefaultLimit = 200

type Sender string

const (
	SenderStudent Sender = "student"
	SenderPlayer  Sender = "player"
)

type Message struct {
	ID        string    `json:"id"`
	Sender    Sender    `json:"sender"`
	Content   string    `json:"content"`
	Time      time.Time `json:"time"`
	RequestID string    `json:"requestId,omitempty"`
}

type Store struct {
	kv    store.Store
	limit int
	now   func() time.Time

	// serializes read-modify-write per process
	mu sync.Mutex
}

// New wraps kv. A limit <= 0 uses DefaultLimit.
func New(kv store.Store, limit int) *Store {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Store{kv: kv, limit: limit, now: time.Now}
}

func key(studentID string) string {
	return keyPrefix + strings.ToLower(studentID)
}

// Load returns the transcript of studentID, oldest first. A student without
// history has an empty transcript.
func (s *Store) Load(ctx context.Context, studentID string) ([]Message, error) {
	b, err := s.kv.Get(ctx, key(studentID))
	if errors.Is(err, store.ErrNotFound) {
		return []Message{}, nil
	}
	if err != nil {
		return nil, err
	}
	var msgs []Message
	if err := json.Unmarshal(b, &msgs); err != nil {
		return nil, fmt.Errorf("decode transcript %s: %w", studentID, err)
	}
	return msgs, nil
}

// Append adds m to the transcript of studentID, filling in a missing id and
// time, and drops the oldest messages beyond the limit.
func (s *Store) Append(ctx context.Context, studentID string, m Message) (Message, error) {
	if studentID == "" {
		return Message{}, errors.New("transcript: empty student id")
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Time.IsZero() {
		m.Time = s.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs, err := s.Load(ctx, studentID)
	if err != nil {
		return Message{}, err
	}
	msgs = append(msgs, m)
	if over := len(msgs) - s.limit; over > 0 {
		msgs = msgs[over:]
	}
	b, err := json.Marshal(msgs)
	if err != nil {
		return Message{}, err
	}
	return m, s.kv.Set(ctx, key(studentID), b)
}

// Clear removes the transcript of studentID, or every transcript when
// studentID is empty.
func (s *Store) Clear(ctx context.Context, studentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if studentID != "" {
		return s.kv.Delete(ctx, key(studentID))
	}
	keys, err := s.kv.Keys(ctx, keyPrefix)
	if err != nil {
		return err
	}
	return s.kv.Delete(ctx, keys...)
}

// Students lists the lower-case ids that have a transcript.
func (s *Store) Students(ctx context.Context) ([]string, error) {
	keys, err := s.kv.Keys(ctx, keyPrefix)
	if err != nil {
		return nil, err
	}
	for i, k := range keys {
		keys[i] = strings.TrimPrefix(k, keyPrefix)
	}
	return keys, nil
}
