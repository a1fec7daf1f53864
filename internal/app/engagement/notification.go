package engagement

import (
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/tutu-network/rivals/internal/domain"
)

// MaxNotifications is how many notifications survive a day reset.
const MaxNotifications = 100

// NewNotification builds an unread notification with a ULID stamped at the
// creation time, so IDs sort in creation order.
func NewNotification(kind domain.NotificationKind, msg string, at time.Time) domain.Notification {
	return domain.Notification{
		ID:        ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String(),
		Kind:      kind,
		Message:   msg,
		CreatedAt: at,
	}
}

// AppendNotification returns s with n appended. The backing array of the
// input is never written.
func AppendNotification(s domain.Snapshot, n domain.Notification) domain.Snapshot {
	out := make([]domain.Notification, 0, len(s.Notifications)+1)
	out = append(out, s.Notifications...)
	s.Notifications = append(out, n)
	return s
}

// TrimNotifications keeps the newest max notifications.
func TrimNotifications(list []domain.Notification, max int) []domain.Notification {
	if max <= 0 || len(list) <= max {
		return list
	}
	return append([]domain.Notification(nil), list[len(list)-max:]...)
}

// MarkRead marks the notification with id read. An empty id marks all.
// It returns the number of notifications changed.
func MarkRead(s domain.Snapshot, id string) (domain.Snapshot, int) {
	changed := 0
	out := make([]domain.Notification, len(s.Notifications))
	for i, n := range s.Notifications {
		if !n.Read && (id == "" || n.ID == id) {
			n.Read = true
			changed++
		}
		out[i] = n
	}
	if changed == 0 {
		return s, 0
	}
	s.Notifications = out
	return s, changed
}
