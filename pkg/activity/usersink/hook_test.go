package usersink

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-vaultstate/pkg/activity"
	usertypes "github.com/goliatone/go-users/pkg/types"
	"github.com/google/uuid"
)

type recordingSink struct {
	records []usertypes.ActivityRecord
}

func (s *recordingSink) Log(_ context.Context, record usertypes.ActivityRecord) error {
	s.records = append(s.records, record)
	return nil
}

func TestHookMapsEventToActivityRecord(t *testing.T) {
	sink := &recordingSink{}
	hook := Hook{Sink: sink}

	userID := uuid.New()
	now := time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)
	err := hook.Notify(context.Background(), activity.Event{
		Verb:       activity.VerbPolicyUpserted,
		UserID:     userID.String(),
		ObjectType: "policy",
		ObjectID:   "p1",
		Metadata:   map[string]any{"type": "master_password"},
		OccurredAt: now,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(sink.records) != 1 {
		t.Fatalf("expected one record, got %d", len(sink.records))
	}
	record := sink.records[0]
	if record.UserID != userID || record.ActorID != userID {
		t.Fatalf("expected user mapped to actor and user, got %+v", record)
	}
	if record.Verb != activity.VerbPolicyUpserted || record.ObjectType != "policy" || record.ObjectID != "p1" {
		t.Fatalf("unexpected record: %+v", record)
	}
	if record.Data["type"] != "master_password" {
		t.Fatalf("metadata lost: %+v", record.Data)
	}
	if !record.OccurredAt.Equal(now) {
		t.Fatalf("expected explicit time preserved, got %v", record.OccurredAt)
	}
}

func TestHookToleratesNonUUIDUsers(t *testing.T) {
	sink := &recordingSink{}
	hook := Hook{Sink: sink}

	err := hook.Notify(context.Background(), activity.Event{
		Verb:       activity.VerbPolicyCleared,
		UserID:     "alice",
		ObjectType: "policy",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sink.records[0].UserID != uuid.Nil {
		t.Fatalf("expected nil uuid for non-uuid user, got %v", sink.records[0].UserID)
	}
}

func TestHookSkipsIncompleteEvents(t *testing.T) {
	sink := &recordingSink{}
	hook := Hook{Sink: sink}

	if err := hook.Notify(context.Background(), activity.Event{Verb: "x"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sink.records) != 0 {
		t.Fatalf("incomplete event must not reach the sink")
	}

	if err := (Hook{}).Notify(context.Background(), activity.Event{Verb: "x", ObjectType: "y"}); err != nil {
		t.Fatalf("nil sink must be a no-op, got %v", err)
	}
}
