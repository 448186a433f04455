package storage

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoConfig contains connection settings for MongoDB preference store.
type MongoConfig struct {
	URI        string // e.g. mongodb://localhost:27017
	Database   string // e.g. polyview
	Collection string // e.g. player_mappings
}

// MongoPrefStore implements session.PrefStore on MongoDB backend.
type MongoPrefStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	ctxTimeout time.Duration
}

type prefDoc struct {
	Player    string    `bson:"player"`
	Mapping   string    `bson:"mapping"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// NewMongoPrefStore establishes connection and returns store.
func NewMongoPrefStore(ctx context.Context, cfg MongoConfig) (*MongoPrefStore, error) {
	if cfg.URI == "" {
		cfg.URI = "mongodb://localhost:27017"
	}
	if cfg.Database == "" {
		cfg.Database = "polyview"
	}
	if cfg.Collection == "" {
		cfg.Collection = "player_mappings"
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}

	store := &MongoPrefStore{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		ctxTimeout: 5 * time.Second,
	}
	idx := mongo.IndexModel{
		Keys:    bson.D{{Key: "player", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("player_unique"),
	}
	if _, err := store.collection.Indexes().CreateOne(ctx, idx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	return store, nil
}

// SaveMapping upserts player's mapping.
func (m *MongoPrefStore) SaveMapping(ctx context.Context, player, mapping string) error {
	if err := validatePref(player, mapping); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()

	key := prefKey(player)
	_, err := m.collection.UpdateOne(ctx,
		bson.M{"player": key},
		bson.M{"$set": prefDoc{Player: key, Mapping: mapping, UpdatedAt: time.Now()}},
		options.Update().SetUpsert(true),
	)
	return err
}

// LoadMapping implements session.PrefStore.
func (m *MongoPrefStore) LoadMapping(ctx context.Context, player string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()

	var doc prefDoc
	err := m.collection.FindOne(ctx, bson.M{"player": prefKey(player)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return doc.Mapping, true, nil
}

// Delete removes stored preference.
func (m *MongoPrefStore) Delete(ctx context.Context, player string) error {
	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()
	_, err := m.collection.DeleteOne(ctx, bson.M{"player": prefKey(player)})
	return err
}

// Close disconnects client.
func (m *MongoPrefStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.ctxTimeout)
	defer cancel()
	return m.client.Disconnect(ctx)
}
