package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"dealroom/internal/domain"
	"dealroom/internal/usecase"
)

const maxAppendAttempts = 16

type auditRecord struct {
	ID         string            `bson:"_id"`
	DocumentID string            `bson:"documentId"`
	Seq        int64             `bson:"seq"`
	ActorID    string            `bson:"actorId,omitempty"`
	Action     string            `bson:"action"`
	Origin     string            `bson:"origin,omitempty"`
	Agent      string            `bson:"agent,omitempty"`
	Metadata   map[string]string `bson:"metadata"`
	PrevHash   string            `bson:"prevHash"`
	Hash       string            `bson:"hash"`
	CreatedAt  time.Time         `bson:"createdAt"`
	// Absent rather than empty so the partial unique index skips it.
	IdempotencyKey string `bson:"idempotencyKey,omitempty"`
}

type AuditEventRepository struct {
	coll    *mongo.Collection
	timeout time.Duration
}

func NewAuditEventRepository(db *mongo.Database) *AuditEventRepository {
	return &AuditEventRepository{coll: db.Collection(auditCollection)}
}

// Append reads the chain tip and inserts the next link. The unique
// (documentId, seq) index rejects a racing writer, which re-reads and retries.
// A keyed event that lost to a writer with the same key is reported on the
// retry by the idempotency lookup.
func (r *AuditEventRepository) Append(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	event.CreatedAt = event.CreatedAt.UTC().Truncate(time.Millisecond)
	if event.Metadata == nil {
		event.Metadata = map[string]string{}
	}
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	for attempt := 0; attempt < maxAppendAttempts; attempt++ {
		if event.IdempotencyKey != "" {
			existing, found, err := r.findByKey(ctx, event.DocumentID, event.IdempotencyKey)
			if err != nil {
				return domain.AuditEvent{}, err
			}
			if found {
				return existing, domain.ErrAlreadyRecorded
			}
		}
		seq, prevHash, err := r.tip(ctx, event.DocumentID)
		if err != nil {
			return domain.AuditEvent{}, err
		}
		event.Seq = seq + 1
		event.PrevHash = prevHash
		hash, err := domain.ComputeAuditHash(event)
		if err != nil {
			return domain.AuditEvent{}, err
		}
		event.Hash = hash

		_, err = r.coll.InsertOne(ctx, auditRecordFromDomain(event))
		if err == nil {
			return event, nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return domain.AuditEvent{}, wrapErr(err)
		}
	}
	return domain.AuditEvent{}, fmt.Errorf("audit append contention on %s: %w", event.DocumentID, domain.ErrUnavailable)
}

func (r *AuditEventRepository) findByKey(ctx context.Context, documentID, key string) (domain.AuditEvent, bool, error) {
	var record auditRecord
	err := r.coll.FindOne(ctx, bson.M{"documentId": documentID, "idempotencyKey": key}).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.AuditEvent{}, false, nil
	}
	if err != nil {
		return domain.AuditEvent{}, false, wrapErr(err)
	}
	return auditFromRecord(record), true, nil
}

func (r *AuditEventRepository) tip(ctx context.Context, documentID string) (int64, string, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "seq", Value: -1}})
	var last auditRecord
	err := r.coll.FindOne(ctx, bson.M{"documentId": documentID}, opts).Decode(&last)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, domain.ZeroAuditHash(), nil
	}
	if err != nil {
		return 0, "", wrapErr(err)
	}
	return last.Seq, last.Hash, nil
}

func (r *AuditEventRepository) ListByDocument(ctx context.Context, documentID string, filter domain.AuditFilter) ([]domain.AuditEvent, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := bson.M{"documentId": documentID}
	if len(filter.Actions) > 0 {
		actions := make([]string, 0, len(filter.Actions))
		for _, action := range filter.Actions {
			actions = append(actions, string(action))
		}
		query["action"] = bson.M{"$in": actions}
	}
	if filter.ActorID != "" {
		query["actorId"] = filter.ActorID
	}
	window := bson.M{}
	if filter.Since != nil {
		window["$gte"] = filter.Since.UTC()
	}
	if filter.Until != nil {
		window["$lte"] = filter.Until.UTC()
	}
	if len(window) > 0 {
		query["createdAt"] = window
	}
	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: 1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cursor, err := r.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, wrapErr(err)
	}
	var records []auditRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, wrapErr(err)
	}
	out := make([]domain.AuditEvent, 0, len(records))
	for _, record := range records {
		out = append(out, auditFromRecord(record))
	}
	return out, nil
}

func auditRecordFromDomain(event domain.AuditEvent) auditRecord {
	return auditRecord{
		ID:             event.ID,
		DocumentID:     event.DocumentID,
		Seq:            event.Seq,
		ActorID:        event.ActorID,
		Action:         string(event.Action),
		Origin:         event.Origin,
		Agent:          event.Agent,
		Metadata:       event.Metadata,
		PrevHash:       event.PrevHash,
		Hash:           event.Hash,
		CreatedAt:      event.CreatedAt,
		IdempotencyKey: event.IdempotencyKey,
	}
}

func auditFromRecord(record auditRecord) domain.AuditEvent {
	metadata := record.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	return domain.AuditEvent{
		ID:             record.ID,
		DocumentID:     record.DocumentID,
		Seq:            record.Seq,
		ActorID:        record.ActorID,
		Action:         domain.AuditAction(record.Action),
		Origin:         record.Origin,
		Agent:          record.Agent,
		Metadata:       metadata,
		PrevHash:       record.PrevHash,
		Hash:           record.Hash,
		CreatedAt:      record.CreatedAt.UTC(),
		IdempotencyKey: record.IdempotencyKey,
	}
}

var _ usecase.AuditEventRepository = (*AuditEventRepository)(nil)
