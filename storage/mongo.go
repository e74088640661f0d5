package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Defaults for the MongoDB provider.
const (
	DefaultMongoDatabase   = "taskmodule"
	DefaultMongoCollection = "botStateCollection"
)

// MongoStore keeps one document per key in a collection.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

type stateDocument struct {
	ID    string            `bson:"_id"`
	State ConversationState `bson:"state"`
}

// NewMongoStore connects to MongoDB and checks the connection.
func NewMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	database := cfg.Database
	if database == "" {
		database = DefaultMongoDatabase
	}
	collection := cfg.Collection
	if collection == "" {
		collection = DefaultMongoCollection
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.ConnectionString))
	if err != nil {
		return nil, fmt.Errorf("storage: connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("storage: ping mongodb: %w", err)
	}
	return &MongoStore{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}, nil
}

// Get loads the state stored under key.
func (s *MongoStore) Get(ctx context.Context, key string) (ConversationState, error) {
	var doc stateDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ConversationState{}, ErrNotFound
	}
	if err != nil {
		return ConversationState{}, fmt.Errorf("storage: find %s: %w", key, err)
	}
	return doc.State, nil
}

// Save upserts the state under key.
func (s *MongoStore) Save(ctx context.Context, key string, state ConversationState) error {
	state.UpdatedAt = time.Now().UTC()
	update := bson.M{"$set": bson.M{"state": state}}
	if _, err := s.collection.UpdateOne(ctx, bson.M{"_id": key}, update, options.Update().SetUpsert(true)); err != nil {
		return fmt.Errorf("storage: save %s: %w", key, err)
	}
	return nil
}

// Delete removes the state under key.
func (s *MongoStore) Delete(ctx context.Context, key string) error {
	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return fmt.Errorf("storage: delete %s: %w", key, err)
	}
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
