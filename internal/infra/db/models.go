package db

import "time"

type DocumentModel struct {
	ID           string    `gorm:"type:uuid;primaryKey"`
	OwnerOrgID   string    `gorm:"type:text;index;not null"`
	OwnerKind    string    `gorm:"type:text;not null;default:organization"`
	UploaderID   string    `gorm:"type:text;not null"`
	Policy       string    `gorm:"type:text;not null;default:private"`
	Title        string    `gorm:"type:text;not null"`
	Description  string    `gorm:"type:text"`
	OriginalName string    `gorm:"type:text"`
	MimeType     string    `gorm:"type:text"`
	SizeBytes    int64     `gorm:"not null;default:0"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (DocumentModel) TableName() string {
	return "documents"
}

type AllowListEntryModel struct {
	DocumentID string    `gorm:"type:uuid;primaryKey"`
	Subject    string    `gorm:"type:text;primaryKey"`
	CreatedAt  time.Time `gorm:"not null"`
}

func (AllowListEntryModel) TableName() string {
	return "document_allow_list"
}

type AccessRequestModel struct {
	ID           string `gorm:"type:uuid;primaryKey"`
	DocumentID   string `gorm:"type:uuid;index;not null"`
	RequesterID  string `gorm:"type:text;index;not null"`
	OwnerOrgID   string `gorm:"type:text;not null"`
	Status       string `gorm:"type:text;not null"`
	Note         string `gorm:"type:text"`
	AcceptedAt   *time.Time
	AcceptedFrom *string
	RejectedBy   *string
	ResolvedAt   *time.Time
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (AccessRequestModel) TableName() string {
	return "access_requests"
}

type AuditEventModel struct {
	ID             string    `gorm:"type:uuid;primaryKey"`
	DocumentID     string    `gorm:"type:uuid;not null;uniqueIndex:idx_audit_events_document_seq,priority:1"`
	Seq            int64     `gorm:"not null;uniqueIndex:idx_audit_events_document_seq,priority:2"`
	ActorID        *string   `gorm:"type:text"`
	Action         string    `gorm:"type:text;not null"`
	Origin         string    `gorm:"type:text"`
	Agent          string    `gorm:"type:text"`
	MetadataJSON   []byte    `gorm:"column:metadata_json;type:jsonb;not null"`
	PrevHash       string    `gorm:"not null"`
	Hash           string    `gorm:"not null"`
	CreatedAt      time.Time `gorm:"column:created_at;not null"`
	IdempotencyKey *string   `gorm:"type:text"`
}

func (AuditEventModel) TableName() string {
	return "audit_events"
}

type DocumentAuditSeqModel struct {
	DocumentID string `gorm:"type:uuid;primaryKey"`
	Seq        int64  `gorm:"not null"`
}

func (DocumentAuditSeqModel) TableName() string {
	return "document_audit_seq"
}
