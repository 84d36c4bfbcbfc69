package snapshot

import (
	"context"
	"testing"
	"time"
)

func TestStore_SaveLoadDelete(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	payload := []byte(`{"session_id":"s1"}`)
	if err := s.Save(ctx, "s1", "u1", payload, time.Unix(1000, 0)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("Load = %q, want %q", got, payload)
	}

	if err := s.Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Load(ctx, "s1"); err == nil {
		t.Fatal("Load after Delete should fail")
	}
}

func TestStore_SaveUpserts(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	_ = s.Save(ctx, "s1", "u1", []byte("first"), time.Unix(1000, 0))
	_ = s.Save(ctx, "s1", "u1", []byte("second"), time.Unix(2000, 0))

	got, err := s.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(got) != "second" {
		t.Fatalf("Load = %q, want %q", got, "second")
	}
}

func TestStore_List(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	_ = s.Save(ctx, "s1", "u1", []byte("a"), time.Unix(1000, 0))
	_ = s.Save(ctx, "s2", "u2", []byte("bb"), time.Unix(2000, 0))

	records, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("List returned %d records, want 2", len(records))
	}
	if records[0].SessionID != "s2" {
		t.Fatalf("List[0].SessionID = %q, want %q (most recent first)", records[0].SessionID, "s2")
	}
}
