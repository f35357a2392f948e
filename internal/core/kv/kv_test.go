package kv

import (
	"context"
	"errors"
	"testing"
)

func TestMemory_GetMissing(t *testing.T) {
	m := NewMemory()
	_, err := m.Get(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestMemory_SetCopiesValue(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	value := []byte("[]")
	if err := m.Set(ctx, "k", value); err != nil {
		t.Fatal(err)
	}
	value[0] = 'X'

	got, err := m.Get(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "[]" {
		t.Errorf("Get() = %q, stored value was aliased", got)
	}
}
