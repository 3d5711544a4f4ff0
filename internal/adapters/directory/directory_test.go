package directory

import (
	"context"
	"errors"
	"testing"

	"github.com/stagecast/stagecast/internal/core"
	"github.com/stagecast/stagecast/internal/domain"
)

func TestVerifyToken(t *testing.T) {
	d := New()
	d.RegisterToken("tok", domain.Identity{ID: "u1", DisplayName: "Uno"})

	identity, err := d.VerifyToken(context.Background(), "tok")
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if identity.ID != "u1" || identity.DisplayName != "Uno" {
		t.Fatalf("unexpected identity %+v", identity)
	}
}

func TestVerifyTokenUnknown(t *testing.T) {
	d := New()

	_, err := d.VerifyToken(context.Background(), "nope")
	if !errors.Is(err, core.ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
}

func TestCreateAndGetStageRecord(t *testing.T) {
	d := New()
	owner := domain.Identity{ID: "u1", DisplayName: "Uno"}

	created, err := d.CreateStageRecord(context.Background(), "jam", domain.StageMusic, "s3cret", owner)
	if err != nil {
		t.Fatalf("CreateStageRecord: %v", err)
	}
	if created.ID == "" {
		t.Fatal("record must get an id")
	}
	if created.OwnerID != "u1" || created.Kind != domain.StageMusic {
		t.Fatalf("unexpected record %+v", created)
	}

	got, err := d.GetStageRecord(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetStageRecord: %v", err)
	}
	if got.Name != "jam" || !got.CheckSecret("s3cret") {
		t.Fatalf("unexpected record %+v", got)
	}
	if got.CheckSecret("wrong") {
		t.Fatal("wrong secret must not pass")
	}

	// The returned record is a copy, mutating it must not leak back.
	got.Name = "mutated"
	again, _ := d.GetStageRecord(context.Background(), created.ID)
	if again.Name != "jam" {
		t.Fatal("stored record must stay immutable")
	}
}

func TestGetStageRecordMissing(t *testing.T) {
	d := New()

	_, err := d.GetStageRecord(context.Background(), "ghost")
	if !errors.Is(err, core.ErrStageNotFound) {
		t.Fatalf("expected ErrStageNotFound, got %v", err)
	}
}
