package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meridian/circulation-engine/circulation"
)

// =============================================================================
// IN-APP INBOX - the always-on channel
// =============================================================================

// Message is a delivered in-app notice.
type Message struct {
	ID        string
	AccountID circulation.AccountID
	Category  circulation.NotificationCategory
	Body      string
	Read      bool
	SentAt    time.Time
}

// Inbox keeps per-account notices in memory, newest last. It is the one
// channel every notice reaches regardless of priority.
type Inbox struct {
	mu       sync.RWMutex
	messages map[circulation.AccountID][]Message
	now      func() time.Time
}

func NewInbox() *Inbox {
	return &Inbox{
		messages: make(map[circulation.AccountID][]Message),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (i *Inbox) Name() string { return "inbox" }

func (i *Inbox) Deliver(accountID circulation.AccountID, message string, category circulation.NotificationCategory) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.messages[accountID] = append(i.messages[accountID], Message{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Category:  category,
		Body:      message,
		SentAt:    i.now(),
	})
	return nil
}

// History returns every notice sent to an account, oldest first.
func (i *Inbox) History(accountID circulation.AccountID) []Message {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return append([]Message(nil), i.messages[accountID]...)
}

// Unread returns the notices not yet marked read.
func (i *Inbox) Unread(accountID circulation.AccountID) []Message {
	i.mu.RLock()
	defer i.mu.RUnlock()

	var out []Message
	for _, m := range i.messages[accountID] {
		if !m.Read {
			out = append(out, m)
		}
	}
	return out
}

// MarkRead flags a single notice as read. Returns false when the message
// does not exist for that account.
func (i *Inbox) MarkRead(accountID circulation.AccountID, messageID string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	msgs := i.messages[accountID]
	for idx := range msgs {
		if msgs[idx].ID == messageID {
			msgs[idx].Read = true
			return true
		}
	}
	return false
}
