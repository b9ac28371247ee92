package message

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ukhas/habitat-sub001/errors"
)

// Message is a single routed item. It is immutable after construction and
// passed by pointer to every interested sink.
type Message struct {
	id      uuid.UUID
	source  *Listener
	msgType Type
	data    any
	created time.Time
}

// Option is a functional option for configuring Message construction.
type Option func(*Message)

// WithTime sets the creation timestamp instead of using time.Now().
// Useful for replaying historical data and for tests.
func WithTime(created time.Time) Option {
	return func(m *Message) {
		m.created = created
	}
}

// WithID sets an explicit message ID instead of generating a new one.
func WithID(id uuid.UUID) Option {
	return func(m *Message) {
		m.id = id
	}
}

// New creates a message. A nil source is a type-kind error and a type outside
// the enumeration is a value-kind error. Data is opaque and not validated.
func New(source *Listener, msgType Type, data any, opts ...Option) (*Message, error) {
	if source == nil {
		return nil, errors.Newf(errors.ErrTypeKind, "Message", "New", "source must be a *Listener, got nil")
	}
	if !msgType.Valid() {
		return nil, errors.Newf(errors.ErrValueKind, "Message", "New", "invalid message type %d", int(msgType))
	}

	m := &Message{
		id:      uuid.New(),
		source:  source,
		msgType: msgType,
		data:    data,
		created: time.Now(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// ID returns the unique message identifier.
func (m *Message) ID() uuid.UUID { return m.id }

// Source returns the listener the message came from.
func (m *Message) Source() *Listener { return m.source }

// Type returns the message type.
func (m *Message) Type() Type { return m.msgType }

// Data returns the opaque payload.
func (m *Message) Data() any { return m.data }

// Time returns when the message was constructed.
func (m *Message) Time() time.Time { return m.created }

type messageJSON struct {
	ID     string    `json:"id"`
	Type   Type      `json:"type"`
	Source *Listener `json:"source"`
	Data   any       `json:"data"`
	Time   time.Time `json:"time"`
}

// MarshalJSON renders the message for forwarding sinks.
func (m *Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(messageJSON{
		ID:     m.id.String(),
		Type:   m.msgType,
		Source: m.source,
		Data:   m.data,
		Time:   m.created,
	})
}
