// Package mongo implements a MongoDB-backed conversation history store.
// Each message is one document keyed by user id, indexed by creation time,
// so recent turns can be reloaded to seed a new advisory session.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/moneywise-vn/advisor/runtime/advisor/model"
)

const (
	defaultCollection = "conversation_history"
	defaultTimeout    = 5 * time.Second
)

type (
	// Options configures the history store.
	Options struct {
		// Client is the MongoDB client to use. Required.
		Client *mongodriver.Client

		// Database is the database name. Required.
		Database string

		// Collection is the collection name. Defaults to
		// "conversation_history".
		Collection string

		// Timeout bounds each store operation. Defaults to 5s.
		Timeout time.Duration
	}

	// Store persists and reloads per-user conversation messages.
	Store struct {
		client  *mongodriver.Client
		coll    *mongodriver.Collection
		timeout time.Duration
	}

	messageDocument struct {
		UserID    string    `bson:"user_id"`
		Role      string    `bson:"role"`
		Content   string    `bson:"content"`
		CreatedAt time.Time `bson:"created_at"`
	}
)

// NewStore builds a Mongo-backed history store and ensures its indexes.
func NewStore(ctx context.Context, opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	collection := opts.Collection
	if collection == "" {
		collection = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	coll := opts.Client.Database(opts.Database).Collection(collection)

	ictx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := coll.Indexes().CreateOne(ictx, mongodriver.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return nil, fmt.Errorf("create history index: %w", err)
	}
	return &Store{client: opts.Client, coll: coll, timeout: timeout}, nil
}

// Ping verifies connectivity to the primary.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Append stores msgs for userID in order. Empty messages are skipped.
func (s *Store) Append(ctx context.Context, userID string, msgs []model.Message) error {
	if userID == "" {
		return errors.New("user id is required")
	}
	if len(msgs) == 0 {
		return nil
	}
	now := time.Now().UTC()
	docs := make([]any, 0, len(msgs))
	for i, m := range msgs {
		if m.Content == "" {
			continue
		}
		docs = append(docs, messageDocument{
			UserID:  userID,
			Role:    string(m.Role),
			Content: m.Content,
			// Nudge timestamps so same-batch messages keep their order
			// under the created_at sort.
			CreatedAt: now.Add(time.Duration(i) * time.Millisecond),
		})
	}
	if len(docs) == 0 {
		return nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err := s.coll.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

// Recent returns up to n of the user's most recent messages in
// chronological order. An unknown user yields an empty slice.
func (s *Store) Recent(ctx context.Context, userID string, n int) ([]model.Message, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}
	if n <= 0 {
		return nil, nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(n))
	cursor, err := s.coll.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find history: %w", err)
	}
	var docs []messageDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	msgs := make([]model.Message, 0, len(docs))
	for i := len(docs) - 1; i >= 0; i-- {
		msgs = append(msgs, model.Message{
			Role:    model.Role(docs[i].Role),
			Content: docs[i].Content,
		})
	}
	return msgs, nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}
