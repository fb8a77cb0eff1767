package messageRepo

import (
	"context"
	"time"

	"skylark/models"
)

// MessageEvent is one item of the insert stream. Err is set when the
// stream reports a failure; the channel closes right after.
type MessageEvent struct {
	Message models.Message
	Err     error
}

// MessageRepository defines methods for chat message data access.
type MessageRepository interface {
	// Create stamps the message with the server time and inserts it.
	Create(ctx context.Context, msg *models.Message) error
	// ListByGroup returns a group's messages oldest first.
	ListByGroup(ctx context.Context, groupID string, limit int64) ([]models.Message, error)
	// ListSince returns messages of the given groups created after since, oldest first.
	ListSince(ctx context.Context, groupIDs []string, since time.Time) ([]models.Message, error)
	DeleteByGroup(ctx context.Context, groupID string) error
	// WatchInserts streams newly inserted messages until ctx ends or the
	// stream breaks.
	WatchInserts(ctx context.Context) (<-chan MessageEvent, error)
}
