package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"dealroom/internal/domain"
)

func TestAuditTrail_AppendStampsAndValidates(t *testing.T) {
	repo := &fakeAuditRepo{}
	clock := func() time.Time { return time.Date(2026, 3, 1, 9, 30, 0, 123456789, time.UTC) }
	trail := NewAuditTrail(repo, clock)

	event, err := trail.Append(context.Background(), domain.AuditEvent{DocumentID: "doc-1", Action: domain.AuditViewed})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if event.CreatedAt.Nanosecond() != 123000000 {
		t.Fatalf("expected millisecond precision, got %v", event.CreatedAt)
	}
	if event.Metadata == nil || event.Seq != 1 {
		t.Fatalf("unexpected event %+v", event)
	}

	if _, err := trail.Append(context.Background(), domain.AuditEvent{DocumentID: "doc-1", Action: "shared"}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestAuditTrail_ListIsOrderedAndRestartable(t *testing.T) {
	repo := &fakeAuditRepo{}
	trail := NewAuditTrail(repo, fixedClock)
	ctx := context.Background()
	ac := AuditContext{ActorID: "investor-1"}
	for _, action := range []domain.AuditAction{domain.AuditViewed, domain.AuditDownloaded, domain.AuditViewed} {
		if err := trail.EmitDecision(ctx, ac, action, "doc-1", domain.Decision{Verdict: domain.VerdictAllow, Reason: domain.ReasonPublic}); err != nil {
			t.Fatalf("emit: %v", err)
		}
	}
	if err := trail.EmitApproved(ctx, AuditContext{ActorID: "founder-1"}, "doc-2", "investor-1"); err != nil {
		t.Fatalf("emit approved: %v", err)
	}

	first, err := trail.ListForDocument(ctx, "doc-1", domain.AuditFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(first) != 3 {
		t.Fatalf("expected 3 events, got %d", len(first))
	}
	for i, event := range first {
		if event.Seq != int64(i+1) {
			t.Fatalf("expected seq %d, got %d", i+1, event.Seq)
		}
	}

	if err := trail.EmitDecision(ctx, ac, domain.AuditViewed, "doc-1", domain.Decision{Verdict: domain.VerdictAllow}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	second, _ := trail.ListForDocument(ctx, "doc-1", domain.AuditFilter{})
	if len(second) != 4 {
		t.Fatalf("expected fresh read with 4 events, got %d", len(second))
	}

	limited, _ := trail.ListForDocument(ctx, "doc-1", domain.AuditFilter{Actions: []domain.AuditAction{domain.AuditViewed}, Limit: 2})
	if len(limited) != 2 || limited[0].Seq != 1 || limited[1].Seq != 3 {
		t.Fatalf("unexpected filtered list %+v", limited)
	}
	if _, err := trail.ListForDocument(ctx, "doc-1", domain.AuditFilter{Limit: -1}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestAuditTrail_VerifyDetectsTampering(t *testing.T) {
	repo := &fakeAuditRepo{}
	trail := NewAuditTrail(repo, fixedClock)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := trail.EmitApproved(ctx, AuditContext{ActorID: "founder-1"}, "doc-1", "investor-1"); err != nil {
			t.Fatalf("emit: %v", err)
		}
	}

	report, err := trail.Verify(ctx, "doc-1")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !report.Valid || report.Events != 3 {
		t.Fatalf("expected valid chain, got %+v", report)
	}

	repo.events[1].ActorID = "someone-else"
	report, err = trail.Verify(ctx, "doc-1")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if report.Valid || report.FailedSeq != 2 || report.Problem != "hash mismatch" {
		t.Fatalf("expected hash mismatch at seq 2, got %+v", report)
	}
}

func TestAuditTrail_UnavailableSurfaces(t *testing.T) {
	repo := &fakeAuditRepo{err: domain.ErrUnavailable}
	trail := NewAuditTrail(repo, fixedClock)
	err := trail.EmitApproved(context.Background(), AuditContext{}, "doc-1", "investor-1")
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
