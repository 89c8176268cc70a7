// Package queue provides the async processing queue used by ingestion:
// accepted payloads are stored first, then a message referencing the stored
// object is enqueued for the processor.
package queue

import (
	"context"
	"strconv"
	"sync"
)

// Message is one queued item plus the handle needed to delete it.
type Message struct {
	Body   string
	Handle string
}

// Queue is the contract for queue backends.
type Queue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, max int) ([]Message, error)
	Delete(ctx context.Context, handle string) error
}

// Memory is an in-memory Queue for tests and local development.
type Memory struct {
	mu       sync.Mutex
	messages []Message
	next     int
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Send(_ context.Context, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, Message{Body: body, Handle: strconv.Itoa(m.next)})
	m.next++
	return nil
}

func (m *Memory) Receive(_ context.Context, max int) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if max > len(m.messages) {
		max = len(m.messages)
	}
	out := make([]Message, max)
	copy(out, m.messages[:max])
	return out, nil
}

func (m *Memory) Delete(_ context.Context, handle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, msg := range m.messages {
		if msg.Handle == handle {
			m.messages = append(m.messages[:i], m.messages[i+1:]...)
			break
		}
	}
	return nil
}

// Len reports the queue depth; test helper.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}
