package mongostore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"dealroom/internal/domain"
	"dealroom/internal/usecase"
)

type documentRecord struct {
	ID           string    `bson:"_id"`
	OwnerOrgID   string    `bson:"ownerOrgId"`
	OwnerKind    string    `bson:"ownerKind"`
	UploaderID   string    `bson:"uploaderId"`
	Policy       string    `bson:"policy"`
	AllowList    []string  `bson:"allowList"`
	Title        string    `bson:"title"`
	Description  string    `bson:"description,omitempty"`
	OriginalName string    `bson:"originalName,omitempty"`
	MimeType     string    `bson:"mimeType,omitempty"`
	SizeBytes    int64     `bson:"sizeBytes"`
	CreatedAt    time.Time `bson:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt"`
}

type DocumentRepository struct {
	coll    *mongo.Collection
	timeout time.Duration
}

func NewDocumentRepository(db *mongo.Database) *DocumentRepository {
	return &DocumentRepository{coll: db.Collection(documentsCollection)}
}

func (r *DocumentRepository) Create(ctx context.Context, doc domain.Document) (domain.Document, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	record := documentRecordFromDomain(doc)
	if _, err := r.coll.InsertOne(ctx, record); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.Document{}, domain.ErrInvalidState
		}
		return domain.Document{}, wrapErr(err)
	}
	return documentFromRecord(record), nil
}

func (r *DocumentRepository) Get(ctx context.Context, id string) (domain.Document, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var record documentRecord
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&record); err != nil {
		return domain.Document{}, wrapErr(err)
	}
	return documentFromRecord(record), nil
}

func (r *DocumentRepository) ListByOwner(ctx context.Context, ownerOrgID string) ([]domain.Document, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}})
	cursor, err := r.coll.Find(ctx, bson.M{"ownerOrgId": ownerOrgID}, opts)
	if err != nil {
		return nil, wrapErr(err)
	}
	var records []documentRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, wrapErr(err)
	}
	out := make([]domain.Document, 0, len(records))
	for _, record := range records {
		out = append(out, documentFromRecord(record))
	}
	return out, nil
}

func (r *DocumentRepository) UpdatePolicy(ctx context.Context, id string, policy domain.Policy, at time.Time) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"policy":    string(policy),
		"updatedAt": at.UTC(),
	}})
	if err != nil {
		return wrapErr(err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *DocumentRepository) AddToAllowList(ctx context.Context, id, subject string) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$addToSet": bson.M{"allowList": subject}})
	if err != nil {
		return wrapErr(err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *DocumentRepository) IsAllowed(ctx context.Context, id, subject string) (bool, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	count, err := r.coll.CountDocuments(ctx, bson.M{"_id": id, "allowList": subject}, options.Count().SetLimit(1))
	if err != nil {
		return false, wrapErr(err)
	}
	return count > 0, nil
}

func documentRecordFromDomain(doc domain.Document) documentRecord {
	allow := make([]string, 0, len(doc.AllowList))
	seen := make(map[string]struct{}, len(doc.AllowList))
	for _, subject := range doc.AllowList {
		if _, dup := seen[subject]; dup {
			continue
		}
		seen[subject] = struct{}{}
		allow = append(allow, subject)
	}
	return documentRecord{
		ID:           doc.ID,
		OwnerOrgID:   doc.OwnerOrgID,
		OwnerKind:    string(doc.OwnerKind.OrDefault()),
		UploaderID:   doc.UploaderID,
		Policy:       string(doc.Policy.Normalize()),
		AllowList:    allow,
		Title:        doc.Title,
		Description:  doc.Description,
		OriginalName: doc.OriginalName,
		MimeType:     doc.MimeType,
		SizeBytes:    doc.SizeBytes,
		CreatedAt:    doc.CreatedAt.UTC().Truncate(time.Millisecond),
		UpdatedAt:    doc.UpdatedAt.UTC().Truncate(time.Millisecond),
	}
}

func documentFromRecord(record documentRecord) domain.Document {
	allow := append([]string{}, record.AllowList...)
	sort.Strings(allow)
	return domain.Document{
		ID:           record.ID,
		OwnerOrgID:   record.OwnerOrgID,
		OwnerKind:    domain.OwnerKind(record.OwnerKind).OrDefault(),
		UploaderID:   record.UploaderID,
		Policy:       domain.Policy(record.Policy),
		AllowList:    allow,
		Title:        record.Title,
		Description:  record.Description,
		OriginalName: record.OriginalName,
		MimeType:     record.MimeType,
		SizeBytes:    record.SizeBytes,
		CreatedAt:    record.CreatedAt.UTC(),
		UpdatedAt:    record.UpdatedAt.UTC(),
	}
}

var _ usecase.DocumentRepository = (*DocumentRepository)(nil)
