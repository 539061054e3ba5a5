// Package memory keeps run notifications in process for tests and local runs.
// Payloads are JSON encoded on publish, as the Pub/Sub publisher does, so a
// notification that would not survive the wire fails here too.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Publisher records encoded notifications per topic.
type Publisher struct {
	mu       sync.RWMutex
	messages []Message
}

// Message is one published notification.
type Message struct {
	ID    string
	Topic string
	Data  []byte
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish encodes payload and records it under topic.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	if topic == "" {
		return "", fmt.Errorf("topic is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	id := fmt.Sprintf("memory-%d", len(p.messages)+1)
	p.messages = append(p.messages, Message{ID: id, Topic: topic, Data: data})
	return id, nil
}

// Messages returns every recorded notification in publish order.
func (p *Publisher) Messages() []Message {
	return p.filter(func(Message) bool { return true })
}

// Topic returns the notifications published to topic.
func (p *Publisher) Topic(topic string) []Message {
	return p.filter(func(m Message) bool { return m.Topic == topic })
}

// DecodeLast unmarshals the latest notification on topic into v.
func (p *Publisher) DecodeLast(topic string, v any) error {
	msgs := p.Topic(topic)
	if len(msgs) == 0 {
		return fmt.Errorf("no messages on topic %q", topic)
	}
	if err := json.Unmarshal(msgs[len(msgs)-1].Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", msgs[len(msgs)-1].ID, err)
	}
	return nil
}

func (p *Publisher) filter(keep func(Message) bool) []Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []Message
	for _, m := range p.messages {
		if keep(m) {
			m.Data = append([]byte(nil), m.Data...)
			out = append(out, m)
		}
	}
	return out
}
