package mongostore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"dealroom/internal/domain"
	"dealroom/internal/usecase"
)

type requestRecord struct {
	ID           string     `bson:"_id"`
	DocumentID   string     `bson:"documentId"`
	RequesterID  string     `bson:"requesterId"`
	OwnerOrgID   string     `bson:"ownerOrgId"`
	Status       string     `bson:"status"`
	Note         string     `bson:"note,omitempty"`
	AcceptedAt   *time.Time `bson:"acceptedAt,omitempty"`
	AcceptedFrom string     `bson:"acceptedFrom,omitempty"`
	RejectedBy   string     `bson:"rejectedBy,omitempty"`
	ResolvedAt   *time.Time `bson:"resolvedAt,omitempty"`
	CreatedAt    time.Time  `bson:"createdAt"`
	UpdatedAt    time.Time  `bson:"updatedAt"`
}

type AccessRequestRepository struct {
	coll    *mongo.Collection
	timeout time.Duration
}

func NewAccessRequestRepository(db *mongo.Database) *AccessRequestRepository {
	return &AccessRequestRepository{coll: db.Collection(requestsCollection)}
}

func (r *AccessRequestRepository) Get(ctx context.Context, id string) (domain.AccessRequest, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var record requestRecord
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&record); err != nil {
		return domain.AccessRequest{}, wrapErr(err)
	}
	return requestFromRecord(record), nil
}

func (r *AccessRequestRepository) FindPending(ctx context.Context, documentID, requesterID string) (*domain.AccessRequest, error) {
	return r.findLatest(ctx, documentID, requesterID, domain.RequestPending)
}

func (r *AccessRequestRepository) FindAccepted(ctx context.Context, documentID, requesterID string) (*domain.AccessRequest, error) {
	return r.findLatest(ctx, documentID, requesterID, domain.RequestAccepted)
}

func (r *AccessRequestRepository) findLatest(ctx context.Context, documentID, requesterID string, status domain.RequestStatus) (*domain.AccessRequest, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	filter := bson.M{"documentId": documentID, "requesterId": requesterID, "status": string(status)}
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	var record requestRecord
	err := r.coll.FindOne(ctx, filter, opts).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	req := requestFromRecord(record)
	return &req, nil
}

// Create leans on the partial unique index over pending pairs; a duplicate
// key means another caller holds the pending slot.
func (r *AccessRequestRepository) Create(ctx context.Context, req domain.AccessRequest) (domain.AccessRequest, bool, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	req.Status = domain.RequestPending
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	record := requestRecordFromDomain(req)
	_, err := r.coll.InsertOne(ctx, record)
	if err == nil {
		return requestFromRecord(record), true, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return domain.AccessRequest{}, false, wrapErr(err)
	}
	existing, err := r.findLatest(ctx, req.DocumentID, req.RequesterID, domain.RequestPending)
	if err != nil {
		return domain.AccessRequest{}, false, err
	}
	if existing == nil {
		return domain.AccessRequest{}, false, domain.ErrInvalidState
	}
	return *existing, false, nil
}

func (r *AccessRequestRepository) Save(ctx context.Context, req domain.AccessRequest, expected domain.RequestStatus) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	set := bson.M{
		"status":    string(req.Status),
		"updatedAt": req.UpdatedAt.UTC(),
	}
	if req.AcceptedAt != nil {
		set["acceptedAt"] = req.AcceptedAt.UTC()
		set["acceptedFrom"] = req.AcceptedFrom
	}
	if req.ResolvedAt != nil {
		set["resolvedAt"] = req.ResolvedAt.UTC()
	}
	if req.RejectedBy != "" {
		set["rejectedBy"] = req.RejectedBy
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": req.ID, "status": string(expected)}, bson.M{"$set": set})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrInvalidState
		}
		return wrapErr(err)
	}
	if res.MatchedCount == 1 {
		return nil
	}
	if _, err := r.Get(ctx, req.ID); err != nil {
		return err
	}
	return domain.ErrInvalidState
}

func (r *AccessRequestRepository) ListByDocument(ctx context.Context, documentID string, status domain.RequestStatus) ([]domain.AccessRequest, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	filter := bson.M{"documentId": documentID}
	if status != "" {
		filter["status"] = string(status)
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, wrapErr(err)
	}
	var records []requestRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, wrapErr(err)
	}
	out := make([]domain.AccessRequest, 0, len(records))
	for _, record := range records {
		out = append(out, requestFromRecord(record))
	}
	return out, nil
}

func requestRecordFromDomain(req domain.AccessRequest) requestRecord {
	return requestRecord{
		ID:           req.ID,
		DocumentID:   req.DocumentID,
		RequesterID:  req.RequesterID,
		OwnerOrgID:   req.OwnerOrgID,
		Status:       string(req.Status),
		Note:         req.Note,
		AcceptedAt:   millis(req.AcceptedAt),
		AcceptedFrom: req.AcceptedFrom,
		RejectedBy:   req.RejectedBy,
		ResolvedAt:   millis(req.ResolvedAt),
		CreatedAt:    req.CreatedAt.UTC().Truncate(time.Millisecond),
		UpdatedAt:    req.UpdatedAt.UTC().Truncate(time.Millisecond),
	}
}

func requestFromRecord(record requestRecord) domain.AccessRequest {
	return domain.AccessRequest{
		ID:           record.ID,
		DocumentID:   record.DocumentID,
		RequesterID:  record.RequesterID,
		OwnerOrgID:   record.OwnerOrgID,
		Status:       domain.RequestStatus(record.Status),
		Note:         record.Note,
		AcceptedAt:   millis(record.AcceptedAt),
		AcceptedFrom: record.AcceptedFrom,
		RejectedBy:   record.RejectedBy,
		ResolvedAt:   millis(record.ResolvedAt),
		CreatedAt:    record.CreatedAt.UTC(),
		UpdatedAt:    record.UpdatedAt.UTC(),
	}
}

func millis(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	out := value.UTC().Truncate(time.Millisecond)
	return &out
}

var _ usecase.AccessRequestStore = (*AccessRequestRepository)(nil)
