package accountRepo

import (
	"context"
	"fmt"

	"skylark/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// accountChange is the subset of a change stream event we decode.
type accountChange struct {
	OperationType string          `bson:"operationType"`
	FullDocument  *models.Account `bson:"fullDocument"`
}

// watchPipeline restricts the change stream to one account document.
func watchPipeline(id string) mongo.Pipeline {
	return mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{{Key: "documentKey._id", Value: id}}}},
	}
}

// toEvent maps a change to an AccountEvent. ok is false for changes that
// carry nothing to deliver; stop is true once the stream can no longer
// produce events.
func toEvent(change accountChange) (ev models.AccountEvent, ok bool, stop bool) {
	switch change.OperationType {
	case "delete":
		return models.AccountEvent{Deleted: true}, true, false
	case "insert", "update", "replace":
		// The document can be gone again before the lookup runs.
		if change.FullDocument == nil {
			return models.AccountEvent{}, false, false
		}
		return models.AccountEvent{Account: *change.FullDocument}, true, false
	case "drop", "dropDatabase", "rename", "invalidate":
		return models.AccountEvent{Deleted: true}, true, true
	}
	return models.AccountEvent{}, false, false
}

// Watch opens a change stream on one account and delivers the current
// document first. The channel is closed when ctx ends or the stream fails.
func (r *MongoAccountRepo) Watch(ctx context.Context, id string) (<-chan models.AccountEvent, error) {
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	stream, err := r.coll.Watch(ctx, watchPipeline(id), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to watch account %s: %w", id, err)
	}

	out := make(chan models.AccountEvent, 1)
	send := func(ev models.AccountEvent) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(out)
		defer stream.Close(context.Background())

		// Read the initial snapshot after the stream is open so no revision
		// falls between the two.
		initial, err := r.GetByID(ctx, id)
		switch {
		case err != nil:
			if !send(models.AccountEvent{Err: err}) {
				return
			}
		case initial == nil:
			if !send(models.AccountEvent{Deleted: true}) {
				return
			}
		default:
			if !send(models.AccountEvent{Account: *initial}) {
				return
			}
		}

		for stream.Next(ctx) {
			var change accountChange
			if err := stream.Decode(&change); err != nil {
				if !send(models.AccountEvent{Err: fmt.Errorf("failed to decode account change: %w", err)}) {
					return
				}
				continue
			}
			ev, ok, stop := toEvent(change)
			if ok && !send(ev) {
				return
			}
			if stop {
				return
			}
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			send(models.AccountEvent{Err: fmt.Errorf("account change stream failed: %w", err)})
		}
	}()

	return out, nil
}
