package exchange

import "sync"

// Message is a body with headers.
type Message struct {
	mu      sync.RWMutex
	body    any
	headers map[string]any
}

// NewMessage creates a message with the given body.
func NewMessage(body any) *Message {
	return &Message{body: body, headers: make(map[string]any)}
}

// Body returns the message body.
func (m *Message) Body() any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.body
}

// SetBody replaces the body.
func (m *Message) SetBody(body any) {
	m.mu.Lock()
	m.body = body
	m.mu.Unlock()
}

// Header returns a header value.
func (m *Message) Header(key string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.headers[key]
	return v, ok
}

// HeaderString returns a header as a string, or "" when missing or not a string.
func (m *Message) HeaderString(key string) string {
	v, ok := m.Header(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// SetHeader sets a header value.
func (m *Message) SetHeader(key string, value any) {
	m.mu.Lock()
	m.headers[key] = value
	m.mu.Unlock()
}

// Headers returns a copy of all headers.
func (m *Message) Headers() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]any, len(m.headers))
	for k, v := range m.headers {
		out[k] = v
	}
	return out
}

// Copy returns a shallow copy: headers are copied, the body is shared.
func (m *Message) Copy() *Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c := NewMessage(m.body)
	for k, v := range m.headers {
		c.headers[k] = v
	}
	return c
}
