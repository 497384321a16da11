package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-wallet-exchange/internal/domain"
)

const userEntityCollection = "user_entities"

// MongoBroker stores holder records in MongoDB. Used by self-hosted
// deployments that run without an external context broker.
type MongoBroker struct {
	client   *mongo.Client
	database string
	logger   *zap.Logger
}

// entityDocument wraps a user entity for storage, keyed by the raw
// holder userID rather than the namespaced entity id.
type entityDocument struct {
	UserID string            `bson:"_id"`
	Entity domain.UserEntity `bson:"entity"`
}

// NewMongoBroker connects to MongoDB at uri and stores records in the
// given database.
func NewMongoBroker(ctx context.Context, uri, database string, timeout time.Duration, logger *zap.Logger) (*MongoBroker, error) {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &MongoBroker{
		client:   client,
		database: database,
		logger:   logger.Named("mongodb"),
	}, nil
}

func (b *MongoBroker) collection() *mongo.Collection {
	return b.client.Database(b.database).Collection(userEntityCollection)
}

// PostEntity inserts the holder record.
func (b *MongoBroker) PostEntity(ctx context.Context, entity domain.UserEntity) error {
	userID := userIDFromEntityID(entity.ID)
	_, err := b.collection().InsertOne(ctx, entityDocument{UserID: userID, Entity: entity})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrAlreadyExist
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	b.logger.Debug("Entity created", zap.String("id", entity.ID))
	return nil
}

// GetEntityByID fetches the holder record for userID.
func (b *MongoBroker) GetEntityByID(ctx context.Context, userID string) (domain.UserEntity, bool, error) {
	var doc entityDocument
	err := b.collection().FindOne(ctx, bson.M{"_id": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.UserEntity{}, false, nil
	}
	if err != nil {
		return domain.UserEntity{}, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return doc.Entity, true, nil
}

// UpdateEntity replaces the stored holder record.
func (b *MongoBroker) UpdateEntity(ctx context.Context, userID string, entity domain.UserEntity) error {
	result, err := b.collection().ReplaceOne(ctx, bson.M{"_id": userID}, entityDocument{UserID: userID, Entity: entity})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	b.logger.Debug("Entity updated", zap.String("user_id", userID))
	return nil
}

// Close disconnects the client.
func (b *MongoBroker) Close(ctx context.Context) error {
	return b.client.Disconnect(ctx)
}

func userIDFromEntityID(entityID string) string {
	if len(entityID) > len(domain.EntityIDPrefix) && entityID[:len(domain.EntityIDPrefix)] == domain.EntityIDPrefix {
		return entityID[len(domain.EntityIDPrefix):]
	}
	return entityID
}
