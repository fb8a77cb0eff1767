package messageRepo

import (
	"context"
	"fmt"
	"time"

	"skylark/models"
	"skylark/utils"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// MongoMessageRepo implements MessageRepository using MongoDB.
type MongoMessageRepo struct {
	coll *mongo.Collection
}

func NewMongoMessageRepo(db *mongo.Database) MessageRepository {
	repo := &MongoMessageRepo{coll: db.Collection("messages")}
	if err := repo.ensureIndexes(); err != nil {
		utils.GetLogger().Warn("messages: failed to create indexes", zap.Error(err))
	}
	return repo
}

// ServerTime returns the current time at the precision Mongo stores.
func ServerTime() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func (r *MongoMessageRepo) Create(ctx context.Context, msg *models.Message) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	msg.CreatedAt = ServerTime()
	if _, err := r.coll.InsertOne(ctx, msg); err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

func (r *MongoMessageRepo) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	msgs := []models.Message{}
	if err := cursor.All(ctx, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *MongoMessageRepo) ListByGroup(ctx context.Context, groupID string, limit int64) ([]models.Message, error) {
	// Fetch the newest page, then flip it to chronological order.
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	msgs, err := r.find(ctx, bson.M{"groupId": groupID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages for group %s: %w", groupID, err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (r *MongoMessageRepo) ListSince(ctx context.Context, groupIDs []string, since time.Time) ([]models.Message, error) {
	if len(groupIDs) == 0 {
		return []models.Message{}, nil
	}
	filter := bson.M{
		"groupId":   bson.M{"$in": groupIDs},
		"createdAt": bson.M{"$gt": since},
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	msgs, err := r.find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages since %s: %w", since.Format(time.RFC3339), err)
	}
	return msgs, nil
}

func (r *MongoMessageRepo) DeleteByGroup(ctx context.Context, groupID string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := r.coll.DeleteMany(ctx, bson.M{"groupId": groupID}); err != nil {
		return fmt.Errorf("failed to delete messages for group %s: %w", groupID, err)
	}
	return nil
}

type messageChange struct {
	FullDocument *models.Message `bson:"fullDocument"`
}

func (r *MongoMessageRepo) WatchInserts(ctx context.Context) (<-chan MessageEvent, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{{Key: "operationType", Value: "insert"}}}},
	}
	stream, err := r.coll.Watch(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to watch messages: %w", err)
	}

	out := make(chan MessageEvent, 16)
	go func() {
		defer close(out)
		defer stream.Close(context.Background())

		for stream.Next(ctx) {
			var change messageChange
			if err := stream.Decode(&change); err != nil || change.FullDocument == nil {
				utils.GetLogger().Warn("messages: skipping undecodable change", zap.Error(err))
				continue
			}
			select {
			case out <- MessageEvent{Message: *change.FullDocument}:
			case <-ctx.Done():
				return
			}
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			select {
			case out <- MessageEvent{Err: fmt.Errorf("message change stream failed: %w", err)}:
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}
