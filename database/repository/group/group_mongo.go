package groupRepo

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

// MongoGroupRepo implements GroupRepository using MongoDB.
type MongoGroupRepo struct {
	coll *mongo.Collection
}

func NewMongoGroupRepo(db *mongo.Database) GroupRepository {
	repo := &MongoGroupRepo{coll: db.Collection("groups")}
	if err := repo.ensureIndexes(); err != nil {
		utils.GetLogger().Warn("groups: failed to create indexes", zap.Error(err))
	}
	return repo
}

func (r *MongoGroupRepo) findOne(ctx context.Context, filter bson.M) (*models.Group, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var group models.Group
	if err := r.coll.FindOne(ctx, filter).Decode(&group); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &group, nil
}

func (r *MongoGroupRepo) find(ctx context.Context, filter bson.M) ([]models.Group, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	groups := []models.Group{}
	if err := cursor.All(ctx, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

func (r *MongoGroupRepo) GetByID(ctx context.Context, id string) (*models.Group, error) {
	group, err := r.findOne(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch group with id %s: %w", id, err)
	}
	return group, nil
}

func (r *MongoGroupRepo) GetByCode(ctx context.Context, code string) (*models.Group, error) {
	group, err := r.findOne(ctx, bson.M{"code": code})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch group with code %s: %w", code, err)
	}
	return group, nil
}

func (r *MongoGroupRepo) ListByMember(ctx context.Context, accountID string) ([]models.Group, error) {
	groups, err := r.find(ctx, bson.M{"members": accountID})
	if err != nil {
		return nil, fmt.Errorf("failed to list groups for %s: %w", accountID, err)
	}
	return groups, nil
}

func (r *MongoGroupRepo) GetAll(ctx context.Context) ([]models.Group, error) {
	groups, err := r.find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	return groups, nil
}

func (r *MongoGroupRepo) Create(ctx context.Context, group *models.Group) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	if group.CreatedAt.IsZero() {
		group.CreatedAt = time.Now().UTC()
	}
	if group.Members == nil {
		group.Members = []string{}
	}
	if _, err := r.coll.InsertOne(ctx, group); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateCode
		}
		return fmt.Errorf("failed to create group: %w", err)
	}
	return nil
}

func (r *MongoGroupRepo) updateOne(ctx context.Context, id string, update bson.M) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to update group with id %s: %w", id, err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoGroupRepo) AddMember(ctx context.Context, groupID, accountID string) error {
	return r.updateOne(ctx, groupID, bson.M{"$addToSet": bson.M{"members": accountID}})
}

func (r *MongoGroupRepo) RemoveMember(ctx context.Context, groupID, accountID string) error {
	return r.updateOne(ctx, groupID, bson.M{"$pull": bson.M{"members": accountID}})
}

func (r *MongoGroupRepo) RemoveMemberEverywhere(ctx context.Context, accountID string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := r.coll.UpdateMany(ctx, bson.M{"members": accountID}, bson.M{"$pull": bson.M{"members": accountID}})
	if err != nil {
		return fmt.Errorf("failed to remove %s from groups: %w", accountID, err)
	}
	return nil
}

func (r *MongoGroupRepo) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete group with id %s: %w", id, err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
