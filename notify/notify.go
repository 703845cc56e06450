/*
Package notify delivers circulation notices to members over one or more
channels, routed by priority.

PURPOSE:
  The engine fires categorized notices (loan created, due soon, overdue,
  suspended, ...). This package maps each category to a priority and fans
  the message out: the in-app inbox always receives it, email joins at
  Important, and SMS joins at Urgent.

KEY CONCEPTS:
  Priority:   info < important < urgent, derived from the category
  Channel:    a delivery mechanism (inbox, email, SMS)
  Dispatcher: implements circulation.Notifier; fan-out is synchronous and
              best-effort - a channel failure is logged, never propagated

SEE ALSO:
  - circulation/notify.go: the Notifier contract and categories
  - notify/inbox.go:       the in-app inbox channel
*/
package notify

import (
	"go.uber.org/zap"

	"github.com/meridian/circulation-engine/circulation"
)

// =============================================================================
// PRIORITY
// =============================================================================

// Priority orders notices by urgency. Higher values reach more channels.
type Priority int

const (
	PriorityInfo Priority = iota
	PriorityImportant
	PriorityUrgent
)

func (p Priority) String() string {
	switch p {
	case PriorityUrgent:
		return "urgent"
	case PriorityImportant:
		return "important"
	default:
		return "info"
	}
}

// PriorityFor maps a notice category to its delivery priority. Overdue
// reminders and suspensions are urgent; due-soon reminders and fee
// waivers are important; lifecycle confirmations are informational.
func PriorityFor(category circulation.NotificationCategory) Priority {
	switch category {
	case circulation.NoticeOverdue, circulation.NoticeAccountSuspended:
		return PriorityUrgent
	case circulation.NoticeDueSoon, circulation.NoticeFeesWaived, circulation.NoticeAccountReinstated:
		return PriorityImportant
	default:
		return PriorityInfo
	}
}

// =============================================================================
// CHANNELS
// =============================================================================

// Channel is a single delivery mechanism. Deliver is best-effort;
// the dispatcher logs failures and moves on.
type Channel interface {
	Name() string
	Deliver(accountID circulation.AccountID, message string, category circulation.NotificationCategory) error
}

// =============================================================================
// DISPATCHER
// =============================================================================

// Dispatcher routes notices to channels by priority. It implements
// circulation.Notifier.
type Dispatcher struct {
	inbox  Channel // always receives
	email  Channel // Important and above; may be nil
	sms    Channel // Urgent only; may be nil
	logger *zap.Logger
}

// NewDispatcher builds a dispatcher around the given channels. Nil email
// or sms channels are skipped at their priority tiers.
func NewDispatcher(inbox, email, sms Channel, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{inbox: inbox, email: email, sms: sms, logger: logger}
}

// Notify fans the message out per the category's priority.
func (d *Dispatcher) Notify(accountID circulation.AccountID, message string, category circulation.NotificationCategory) {
	priority := PriorityFor(category)

	channels := []Channel{d.inbox}
	if priority >= PriorityImportant && d.email != nil {
		channels = append(channels, d.email)
	}
	if priority >= PriorityUrgent && d.sms != nil {
		channels = append(channels, d.sms)
	}

	for _, ch := range channels {
		if ch == nil {
			continue
		}
		if err := ch.Deliver(accountID, message, category); err != nil {
			d.logger.Warn("notification delivery failed",
				zap.String("channel", ch.Name()),
				zap.String("account_id", string(accountID)),
				zap.String("category", string(category)),
				zap.Error(err))
			continue
		}
		d.logger.Debug("notification delivered",
			zap.String("channel", ch.Name()),
			zap.String("account_id", string(accountID)),
			zap.String("category", string(category)),
			zap.String("priority", priority.String()))
	}
}

// =============================================================================
// STUB CHANNELS - log-only email and SMS
// =============================================================================

// EmailStub logs in place of sending real mail. Production wires a
// provider client behind the same Channel interface.
type EmailStub struct {
	Logger *zap.Logger
}

func (e *EmailStub) Name() string { return "email" }

func (e *EmailStub) Deliver(accountID circulation.AccountID, message string, category circulation.NotificationCategory) error {
	if e.Logger != nil {
		e.Logger.Info("email notification",
			zap.String("account_id", string(accountID)),
			zap.String("category", string(category)),
			zap.String("message", message))
	}
	return nil
}

// SMSStub logs in place of sending a real text message.
type SMSStub struct {
	Logger *zap.Logger
}

func (s *SMSStub) Name() string { return "sms" }

func (s *SMSStub) Deliver(accountID circulation.AccountID, message string, category circulation.NotificationCategory) error {
	if s.Logger != nil {
		s.Logger.Info("sms notification",
			zap.String("account_id", string(accountID)),
			zap.String("category", string(category)),
			zap.String("message", message))
	}
	return nil
}
