package mongostore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"dealroom/internal/config"
	"dealroom/internal/domain"
)

const (
	documentsCollection = "documents"
	requestsCollection  = "access_requests"
	auditCollection     = "audit_events"
)

type Store struct {
	Client  *mongo.Client
	DB      *mongo.Database
	Timeout time.Duration
}

func Connect(ctx context.Context, cfg config.Config, log *zap.Logger) (*Store, error) {
	if cfg.MongoURI == "" {
		return nil, fmt.Errorf("connect mongo: empty uri: %w", domain.ErrUnavailable)
	}
	clientOptions := options.Client().ApplyURI(cfg.MongoURI).
		SetMaxPoolSize(50).
		SetConnectTimeout(5 * time.Second)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	pingCtx, cancelPing := context.WithTimeout(ctx, 2*time.Second)
	defer cancelPing()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	store := &Store{
		Client:  client,
		DB:      client.Database(cfg.MongoDatabase),
		Timeout: cfg.StoreTimeout(),
	}
	if err := store.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	if log != nil {
		log.Info("mongo store ready", zap.String("database", cfg.MongoDatabase))
	}
	return store, nil
}

// EnsureIndexes creates the indexes the adapters rely on for uniqueness.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []struct {
		collection string
		model      mongo.IndexModel
	}{
		{documentsCollection, mongo.IndexModel{
			Keys:    bson.D{{Key: "ownerOrgId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("documents_owner_created"),
		}},
		{requestsCollection, mongo.IndexModel{
			Keys: bson.D{{Key: "documentId", Value: 1}, {Key: "requesterId", Value: 1}},
			Options: options.Index().
				SetName("access_requests_single_pending").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"status": string(domain.RequestPending)}),
		}},
		{requestsCollection, mongo.IndexModel{
			Keys:    bson.D{{Key: "documentId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("access_requests_document_created"),
		}},
		{auditCollection, mongo.IndexModel{
			Keys:    bson.D{{Key: "documentId", Value: 1}, {Key: "seq", Value: 1}},
			Options: options.Index().SetName("audit_events_document_seq").SetUnique(true),
		}},
		{auditCollection, mongo.IndexModel{
			Keys: bson.D{{Key: "documentId", Value: 1}, {Key: "idempotencyKey", Value: 1}},
			Options: options.Index().
				SetName("audit_events_idempotency").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"idempotencyKey": bson.M{"$exists": true}}),
		}},
	}
	for _, idx := range indexes {
		if _, err := s.DB.Collection(idx.collection).Indexes().CreateOne(ctx, idx.model); err != nil && !isIndexExistsError(err) {
			return fmt.Errorf("create index %s: %w", idx.collection, err)
		}
	}
	return nil
}

func (s *Store) Documents() *DocumentRepository {
	return &DocumentRepository{coll: s.DB.Collection(documentsCollection), timeout: s.Timeout}
}

func (s *Store) AccessRequests() *AccessRequestRepository {
	return &AccessRequestRepository{coll: s.DB.Collection(requestsCollection), timeout: s.Timeout}
}

func (s *Store) AuditEvents() *AuditEventRepository {
	return &AuditEventRepository{coll: s.DB.Collection(auditCollection), timeout: s.Timeout}
}

func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.Client == nil {
		return domain.ErrUnavailable
	}
	return wrapErr(s.Client.Ping(ctx, nil))
}

func (s *Store) Close(ctx context.Context) error {
	if s == nil || s.Client == nil {
		return nil
	}
	return s.Client.Disconnect(ctx)
}

func wrapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return domain.ErrNotFound
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrUnavailable):
		return err
	default:
		return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func isIndexExistsError(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && (cmdErr.Code == 85 || cmdErr.Code == 86) {
		return true
	}
	return strings.Contains(err.Error(), "already exists")
}
