package storage

import (
	"context"
	"errors"
	"testing"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	s := NewLocalStore(t.TempDir())
	ctx := context.Background()

	if _, err := s.Load(ctx, "state.json"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	body := []byte(`{"users":{}}`)
	if err := s.Save(ctx, "state.json", body); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.Load(ctx, "state.json")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(got) != string(body) {
		t.Errorf("loaded %q, want %q", got, body)
	}
}
