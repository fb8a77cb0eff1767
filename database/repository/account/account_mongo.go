package accountRepo

import (
	"context"
	"errors"
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

// MongoAccountRepo implements AccountRepository using MongoDB.
type MongoAccountRepo struct {
	coll *mongo.Collection
}

// NewMongoAccountRepo creates a new instance of AccountRepository using MongoDB.
func NewMongoAccountRepo(db *mongo.Database) AccountRepository {
	repo := &MongoAccountRepo{coll: db.Collection("accounts")}

	if err := repo.ensureIndexes(); err != nil {
		utils.GetLogger().Warn("accounts: failed to create indexes", zap.Error(err))
	}
	return repo
}

var safeProjection = bson.M{"passwordHash": 0}

func (r *MongoAccountRepo) findOne(ctx context.Context, filter bson.M) (*models.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var account models.Account
	if err := r.coll.FindOne(ctx, filter).Decode(&account); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	if account.Devices == nil {
		account.Devices = []models.Device{}
	}
	return &account, nil
}

// GetByID retrieves an account by its id.
func (r *MongoAccountRepo) GetByID(ctx context.Context, id string) (*models.Account, error) {
	account, err := r.findOne(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch account with id %s: %w", id, err)
	}
	return account, nil
}

// GetByUsername retrieves an account by its username (exact, case-sensitive).
func (r *MongoAccountRepo) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	account, err := r.findOne(ctx, bson.M{"username": username})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch account with username %s: %w", username, err)
	}
	return account, nil
}

// GetAll retrieves all accounts, newest first, excluding password hashes.
func (r *MongoAccountRepo) GetAll(ctx context.Context) ([]models.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	opts := options.Find().
		SetProjection(safeProjection).
		SetSort(bson.D{{Key: "createdAt", Value: -1}})

	cursor, err := r.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve accounts: %w", err)
	}
	defer cursor.Close(ctx)

	accounts := []models.Account{}
	for cursor.Next(ctx) {
		var a models.Account
		if err := cursor.Decode(&a); err != nil {
			return nil, fmt.Errorf("failed to decode account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accounts: %w", err)
	}
	return accounts, nil
}

// Create inserts a new account document.
func (r *MongoAccountRepo) Create(ctx context.Context, account *models.Account) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now
	if account.Devices == nil {
		account.Devices = []models.Device{}
	}

	if _, err := r.coll.InsertOne(ctx, account); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateUsername
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (r *MongoAccountRepo) updateOne(ctx context.Context, id string, update bson.M) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to update account with id %s: %w", id, err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// SetSession writes activeToken and the trimmed device list in one update.
func (r *MongoAccountRepo) SetSession(ctx context.Context, id, token string, devices []models.Device) error {
	return r.updateOne(ctx, id, bson.M{"$set": bson.M{
		"activeToken": token,
		"devices":     devices,
		"updatedAt":   time.Now().UTC(),
	}})
}

// PullDevice removes a device entry by its id.
func (r *MongoAccountRepo) PullDevice(ctx context.Context, id, deviceID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{"_id": id, "devices.id": deviceID}
	update := bson.M{
		"$pull": bson.M{"devices": bson.M{"id": deviceID}},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	}
	result, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to pull device for account %s: %w", id, err)
	}
	return result.MatchedCount > 0, nil
}

// PruneDevices pulls every device but token while activeToken is unchanged.
func (r *MongoAccountRepo) PruneDevices(ctx context.Context, id, token string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{"_id": id, "activeToken": token}
	update := bson.M{
		"$pull": bson.M{"devices": bson.M{"id": bson.M{"$ne": token}}},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	}
	result, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to prune devices for account %s: %w", id, err)
	}
	return result.MatchedCount > 0, nil
}

// ClearActiveTokenIf empties activeToken when it still matches token.
func (r *MongoAccountRepo) ClearActiveTokenIf(ctx context.Context, id, token string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{"_id": id, "activeToken": token}
	update := bson.M{"$set": bson.M{"activeToken": "", "updatedAt": time.Now().UTC()}}
	result, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to clear token for account %s: %w", id, err)
	}
	return result.ModifiedCount > 0, nil
}

// SetAdmin changes the admin flag on an account.
func (r *MongoAccountRepo) SetAdmin(ctx context.Context, id string, isAdmin bool) error {
	return r.updateOne(ctx, id, bson.M{"$set": bson.M{
		"isAdmin":   isAdmin,
		"updatedAt": time.Now().UTC(),
	}})
}

// Delete removes an account document by its id.
func (r *MongoAccountRepo) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete account with id %s: %w", id, err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
