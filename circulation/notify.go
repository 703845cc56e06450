package circulation

// =============================================================================
// NOTIFIER - external message delivery collaborator
// =============================================================================

// NotificationCategory classifies outgoing messages. Delivery channels are
// the notifier's concern; the engine only names the category.
type NotificationCategory string

const (
	NoticeLoanCreated       NotificationCategory = "loan_created"
	NoticeLoanReturned      NotificationCategory = "loan_returned"
	NoticeExtensionApproved NotificationCategory = "extension_approved"
	NoticeDueSoon           NotificationCategory = "due_soon_reminder"
	NoticeOverdue           NotificationCategory = "overdue_reminder"
	NoticeAccountSuspended  NotificationCategory = "account_suspended"
	NoticeAccountReinstated NotificationCategory = "account_reinstated"
	NoticeFeesWaived        NotificationCategory = "fees_waived"
)

// Notifier delivers a message to an account. Fire-and-forget from the
// engine's perspective: no blocking work, no error to handle, no retry.
type Notifier interface {
	Notify(accountID AccountID, message string, category NotificationCategory)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) Notify(AccountID, string, NotificationCategory) {}
