package realtime

import (
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/casevine/casevine/errors"
)

// BroadcastTopic is the logical channel carrying broadcast messages.
const BroadcastTopic = "broadcast"

// UserTopic returns the per-user logical channel name.
func UserTopic(userID uuid.UUID) string {
	return "user-" + userID.String()
}

// ErrEmptyContent is the domain rejection for notifications whose content
// is blank. Unlike scheduling failures it surfaces to the caller: sending
// is a synchronous API, not fire-and-forget.
var ErrEmptyContent = errors.New("cannot send notification with empty content")

// Publisher publishes a payload on a logical channel. The websocket hub is
// the production implementation; publishing to a channel nobody subscribes
// to is a transport-level no-op, not an error.
type Publisher interface {
	Publish(topic string, payload any) error
}

// Dispatcher attempts synchronous delivery of notifications to connected
// users.
type Dispatcher struct {
	registry  *Registry
	publisher Publisher
	log       *zap.SugaredLogger
}

// NewDispatcher creates a dispatcher over the registry and transport.
func NewDispatcher(registry *Registry, publisher Publisher, log *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{registry: registry, publisher: publisher, log: log}
}

// SendToUser delivers the notification on the user's channel if the user
// is connected. Returns true when a publish happened, false when the user
// is offline — an expected, non-exceptional outcome. Nil arguments are a
// precondition violation; blank content is a domain rejection, raised
// before any registry lookup or publish.
func (d *Dispatcher) SendToUser(userID uuid.UUID, notification *Notification) (bool, error) {
	if userID == uuid.Nil || notification == nil {
		return false, errors.Wrap(errors.ErrInvalidArgument, "userID and notification are required")
	}

	if strings.TrimSpace(notification.Content) == "" {
		d.log.Warnw("Rejecting notification with empty content", "user_id", userID)
		return false, ErrEmptyContent
	}

	if !d.registry.IsConnected(userID) {
		d.log.Debugw("User not connected, skipping real-time delivery", "user_id", userID)
		return false, nil
	}

	if err := d.publisher.Publish(UserTopic(userID), notification); err != nil {
		return false, errors.Wrapf(err, "failed to publish notification to user %s", userID)
	}

	d.log.Debugw("Notification delivered", "user_id", userID, "notification_id", notification.ID)
	return true, nil
}

// Broadcast publishes the message on the broadcast channel. The publish
// happens unconditionally: with zero connected users it is simply a no-op
// at the transport layer.
func (d *Dispatcher) Broadcast(message any) error {
	if message == nil {
		return errors.Wrap(errors.ErrInvalidArgument, "broadcast message is required")
	}

	if err := d.publisher.Publish(BroadcastTopic, message); err != nil {
		return errors.Wrap(err, "failed to publish broadcast")
	}

	d.log.Infow("Broadcast message sent", "active_connections", d.registry.ActiveConnectionCount())
	return nil
}
