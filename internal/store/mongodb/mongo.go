// Package mongodb implements store.Store on MongoDB.
// Collections: users (unique username) and messages (sender, recipient, createdAt).
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/vovakirdan/chatnest-server/internal/store"
)

var _ store.Store = (*Store)(nil)

const (
	usersCollection    = "users"
	messagesCollection = "messages"
)

// Config holds connection settings.
type Config struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
	MaxRetry       int
	RetryDelay     time.Duration
}

func (c *Config) setDefaults() error {
	if c.URI == "" {
		return errors.New("mongo uri is required")
	}
	if c.Database == "" {
		c.Database = "chatnest"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.MaxRetry <= 0 {
		c.MaxRetry = 5
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 5 * time.Second
	}
	return nil
}

// Store implements store.Store for MongoDB.
type Store struct {
	client   *mongo.Client
	users    *mongo.Collection
	messages *mongo.Collection
}

type userDoc struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Username     string             `bson:"username"`
	PasswordHash string             `bson:"password"`
	CreatedAt    time.Time          `bson:"createdAt"`
}

type messageDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Sender    string             `bson:"sender"`
	Recipient string             `bson:"recipient"`
	Text      string             `bson:"text,omitempty"`
	File      string             `bson:"file,omitempty"`
	CreatedAt time.Time          `bson:"createdAt"`
}

// New connects to MongoDB, retrying up to cfg.MaxRetry times, and ensures indexes.
func New(ctx context.Context, cfg Config, logger *zerolog.Logger) (*Store, error) {
	if err := cfg.setDefaults(); err != nil {
		return nil, err
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetServerSelectionTimeout(cfg.ConnectTimeout)

	var client *mongo.Client
	var err error
	for attempt := 1; attempt <= cfg.MaxRetry; attempt++ {
		client, err = connect(ctx, opts)
		if err == nil {
			break
		}
		logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", cfg.RetryDelay).Msg("failed to connect to mongodb")
		if attempt == cfg.MaxRetry {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(cfg.RetryDelay):
		}
	}

	db := client.Database(cfg.Database)
	s := &Store{
		client:   client,
		users:    db.Collection(usersCollection),
		messages: db.Collection(messagesCollection),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	logger.Info().Str("database", cfg.Database).Msg("connected to mongodb")
	return s, nil
}

func connect(ctx context.Context, opts *options.ClientOptions) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return client, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create users index: %w", err)
	}

	_, err = s.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "sender", Value: 1},
			{Key: "recipient", Value: 1},
			{Key: "createdAt", Value: 1},
		},
	})
	if err != nil {
		return fmt.Errorf("create messages index: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// CreateUser creates a new user with hashed password.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) (*store.User, error) {
	doc := userDoc{
		ID:           primitive.NewObjectID(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("insert user %q: %w", username, store.ErrConflict)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return doc.toUser(), nil
}

// GetUserByID retrieves a user by ID.
func (s *Store) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("user %q: %w", id, store.ErrNotFound)
	}
	return s.findUser(ctx, bson.M{"_id": oid})
}

// GetUserByUsername retrieves a user by username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	return s.findUser(ctx, bson.M{"username": username})
}

func (s *Store) findUser(ctx context.Context, filter bson.M) (*store.User, error) {
	var doc userDoc
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("user: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return doc.toUser(), nil
}

// ListUsers lists every registered user ordered by username.
func (s *Store) ListUsers(ctx context.Context) ([]*store.User, error) {
	cur, err := s.users.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "username", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}

	users := make([]*store.User, 0, len(docs))
	for i := range docs {
		users = append(users, docs[i].toUser())
	}
	return users, nil
}

// CreateMessage persists a message and assigns its ID.
func (s *Store) CreateMessage(ctx context.Context, msg *store.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	doc := messageDocFrom(msg)
	if _, err := s.messages.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	msg.ID = doc.ID.Hex()
	msg.CreatedAt = doc.CreatedAt
	return nil
}

// ListConversation returns messages between a and b in ascending time order.
func (s *Store) ListConversation(ctx context.Context, a, b string) ([]*store.Message, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"sender": a, "recipient": b},
		bson.M{"sender": b, "recipient": a},
	}}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})

	cur, err := s.messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	var docs []messageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}

	messages := make([]*store.Message, 0, len(docs))
	for i := range docs {
		messages = append(messages, docs[i].toMessage())
	}
	return messages, nil
}

func (d *userDoc) toUser() *store.User {
	return &store.User{
		ID:           d.ID.Hex(),
		Username:     d.Username,
		PasswordHash: d.PasswordHash,
		CreatedAt:    d.CreatedAt,
	}
}

func messageDocFrom(msg *store.Message) messageDoc {
	// BSON dates carry millisecond precision.
	createdAt := msg.CreatedAt.UTC().Truncate(time.Millisecond)
	return messageDoc{
		ID:        primitive.NewObjectIDFromTimestamp(createdAt),
		Sender:    msg.Sender,
		Recipient: msg.Recipient,
		Text:      msg.Text,
		File:      msg.File,
		CreatedAt: createdAt,
	}
}

func (d *messageDoc) toMessage() *store.Message {
	return &store.Message{
		ID:        d.ID.Hex(),
		Sender:    d.Sender,
		Recipient: d.Recipient,
		Text:      d.Text,
		File:      d.File,
		CreatedAt: d.CreatedAt,
	}
}
