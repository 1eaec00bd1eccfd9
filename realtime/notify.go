package realtime

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NotifyService adapts the dispatcher to the scheduler's notification
// collaborator: it builds the notification object and attempts synchronous
// delivery. An offline recipient is logged, not an error — the user simply
// does not receive that reminder.
type NotifyService struct {
	dispatcher *Dispatcher
	log        *zap.SugaredLogger
}

// NewNotifyService creates the delivery adapter.
func NewNotifyService(dispatcher *Dispatcher, log *zap.SugaredLogger) *NotifyService {
	return &NotifyService{dispatcher: dispatcher, log: log}
}

// SendNotification implements sched.NotificationSender.
func (s *NotifyService) SendNotification(recipientID uuid.UUID, content string) error {
	delivered, err := s.dispatcher.SendToUser(recipientID, NewNotification(content))
	if err != nil {
		return err
	}
	if !delivered {
		s.log.Debugw("Recipient offline, reminder dropped", "recipient_id", recipientID)
	}
	return nil
}
