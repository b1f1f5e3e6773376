package api

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RoleChecker is the external identity/permission contract gating administrative
// commands. Role resolution lives outside the core; the engine only enforces
// domain invariants (capability, exclusivity, limits).
type RoleChecker interface {
	HasRole(user, role string) bool
}

// AnyRole allows every user; used by the local wiring and in tests.
type AnyRole struct{}

func (a AnyRole) HasRole(user, role string) bool {
	return true
}

// UserInterface defines an external interface for exchanging information with the user(s).
type UserInterface interface {
	// Run starts the user interface implementation and initialises any external connections.
	Run(ctx context.Context) error
	// Send sends a message to the user and returns the message ID.
	Send(message *Message) int
}

// Message defines a message that should be sent to the user or group.
type Message struct {
	ID    string
	Text  string
	Time  time.Time
	reply int
}

// NewMessage creates a new message.
func NewMessage(txt string) *Message {
	return &Message{
		ID:   uuid.New().String(),
		Text: txt,
		Time: time.Now(),
	}
}

// ReplyTo defines a message id that this message refers to.
func (m *Message) ReplyTo(msgID int) *Message {
	m.reply = msgID
	return m
}

// Reply returns the id of the message this one refers to, 0 if none.
func (m *Message) Reply() int {
	return m.reply
}

// AddLine adds a line argument to the message.
func (m *Message) AddLine(txt string) *Message {
	m.Text = fmt.Sprintf("%s\n%s", m.Text, txt)
	return m
}
