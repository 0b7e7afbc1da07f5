package device

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoRegistry implements Registry on a MongoDB collection keyed by push
// token.
type MongoRegistry struct {
	devices *mongo.Collection
}

// NewMongoRegistry creates a registry bound to the given database.
func NewMongoRegistry(db *mongo.Database) *MongoRegistry {
	return &MongoRegistry{devices: db.Collection("user_devices")}
}

// EnsureIndexes creates the user lookup index.
func (r *MongoRegistry) EnsureIndexes(ctx context.Context) error {
	_, err := r.devices.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "provider", Value: 1}, {Key: "is_active", Value: 1}},
	})
	return err
}

func (r *MongoRegistry) Register(ctx context.Context, userID, token string, provider Provider, platform string) (*Device, error) {
	now := time.Now().UTC()
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "user_id", Value: userID},
			{Key: "provider", Value: provider},
			{Key: "platform", Value: platform},
			{Key: "is_active", Value: true},
			{Key: "last_seen_at", Value: now},
			{Key: "updated_at", Value: now},
			{Key: "last_error_at", Value: nil},
			{Key: "last_error_message", Value: ""},
		}},
		{Key: "$setOnInsert", Value: bson.D{{Key: "created_at", Value: now}}},
	}

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var d Device
	if err := r.devices.FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: token}}, update, opts).Decode(&d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *MongoRegistry) Unregister(ctx context.Context, userID, token string) error {
	res, err := r.devices.DeleteOne(ctx, bson.D{
		{Key: "_id", Value: token},
		{Key: "user_id", Value: userID},
	})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoRegistry) ActiveTokens(ctx context.Context, userID string, provider Provider) ([]string, error) {
	cursor, err := r.devices.Find(ctx, bson.D{
		{Key: "user_id", Value: userID},
		{Key: "provider", Value: provider},
		{Key: "is_active", Value: true},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var tokens []string
	for cursor.Next(ctx) {
		var d Device
		if err := cursor.Decode(&d); err != nil {
			return nil, err
		}
		tokens = append(tokens, d.PushToken)
	}
	return tokens, cursor.Err()
}

func (r *MongoRegistry) Deactivate(ctx context.Context, token, reason string) error {
	now := time.Now().UTC()
	_, err := r.devices.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: token}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "is_active", Value: false},
			{Key: "last_error_at", Value: now},
			{Key: "last_error_message", Value: reason},
			{Key: "updated_at", Value: now},
		}}},
	)
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return err
	}
	return nil
}
