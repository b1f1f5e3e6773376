package local

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/skyex/desk/internal/api"
)

const dateFormat = "Jan _2 15:04:05"

// User is a local user interface that keeps announcements in memory and
// optionally appends them to a log file. It stands in for a chat integration
// during local runs and in tests.
type User struct {
	logger   *log.Logger
	messages []api.Message
	lock     *sync.RWMutex
}

// NewUser creates a local user. A non-empty argument points to a log file
// that announcements are appended to.
func NewUser(l string) (*User, error) {
	var logger *log.Logger
	if l != "" {
		f, err := os.OpenFile(l, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
		if err != nil {
			return nil, fmt.Errorf("could not open message log: %w", err)
		}
		logger = log.New(f, "INFO: ", log.Ldate|log.Ltime|log.Lshortfile)
	}

	return &User{
		logger:   logger,
		messages: make([]api.Message, 0),
		lock:     new(sync.RWMutex),
	}, nil
}

func (u *User) Run(ctx context.Context) error {
	return nil
}

// Send records the message and returns its position.
func (u *User) Send(message *api.Message) int {
	u.lock.Lock()
	defer u.lock.Unlock()
	if u.logger != nil {
		u.logger.Println(fmt.Sprintf("%s | %s", message.Time.Format(dateFormat), message.Text))
	}
	u.messages = append(u.messages, *message)
	return len(u.messages) - 1
}

// Messages returns a copy of everything sent so far.
func (u *User) Messages() []api.Message {
	u.lock.RLock()
	defer u.lock.RUnlock()
	mm := make([]api.Message, len(u.messages))
	copy(mm, u.messages)
	return mm
}
