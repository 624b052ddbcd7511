// Package storetest holds the behavioral test suite every store.Backend
// implementation must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rmax-ai/gfs/pkg/store"
)

// RunBackendTests runs the conformance suite. newBackend must return an
// empty backend on each call; the suite closes it.
func RunBackendTests(t *testing.T, newBackend func(t *testing.T) store.Backend) {
	ctx := context.Background()

	t.Run("Put and Get", func(t *testing.T) {
		b := newBackend(t)
		defer b.Close()

		if err := b.Put(ctx, "Entity/Reviewer/", []byte(`{"name":"Reviewer"}`)); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		got, err := b.Get(ctx, "Entity/Reviewer/")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got) != `{"name":"Reviewer"}` {
			t.Errorf("Get = %s", got)
		}
	})

	t.Run("Get missing key", func(t *testing.T) {
		b := newBackend(t)
		defer b.Close()

		_, err := b.Get(ctx, "Entity/missing/")
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Put overwrites", func(t *testing.T) {
		b := newBackend(t)
		defer b.Close()

		for _, v := range []string{"one", "two"} {
			if err := b.Put(ctx, "Graph/g/", []byte(v)); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
		}
		got, err := b.Get(ctx, "Graph/g/")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got) != "two" {
			t.Errorf("expected last write to win, got %s", got)
		}
		entries, err := b.ScanPrefix(ctx, "Graph/")
		if err != nil {
			t.Fatalf("ScanPrefix failed: %v", err)
		}
		if len(entries) != 1 {
			t.Errorf("expected 1 entry after overwrite, got %d", len(entries))
		}
	})

	t.Run("ScanPrefix ordering and isolation", func(t *testing.T) {
		b := newBackend(t)
		defer b.Close()

		keys := []string{
			"Field/Reviewer/overall/",
			"Field/Review/summary/",
			"Field/Reviewer/name/v1",
			"Field/Reviewer/name/",
			"Entity/Reviewer/",
			"Field/Reviewers/x/",
		}
		for _, k := range keys {
			if err := b.Put(ctx, k, []byte(k)); err != nil {
				t.Fatalf("Put(%s) failed: %v", k, err)
			}
		}

		entries, err := b.ScanPrefix(ctx, "Field/Reviewer/")
		if err != nil {
			t.Fatalf("ScanPrefix failed: %v", err)
		}
		want := []string{"Field/Reviewer/name/", "Field/Reviewer/name/v1", "Field/Reviewer/overall/"}
		if len(entries) != len(want) {
			t.Fatalf("expected %d entries, got %d: %v", len(want), len(entries), entries)
		}
		for i, e := range entries {
			if e.Key != want[i] || string(e.Value) != want[i] {
				t.Errorf("entry %d = (%s, %s), want %s", i, e.Key, e.Value, want[i])
			}
		}

		none, err := b.ScanPrefix(ctx, "Topology/")
		if err != nil {
			t.Fatalf("ScanPrefix failed: %v", err)
		}
		if none == nil || len(none) != 0 {
			t.Errorf("expected an empty non-nil slice, got %#v", none)
		}
	})

	t.Run("Concurrent writers", func(t *testing.T) {
		b := newBackend(t)
		defer b.Close()

		var wg sync.WaitGroup
		errs := make(chan error, 20)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				key := fmt.Sprintf("Entity/e%02d/", i)
				if err := b.Put(ctx, key, []byte(key)); err != nil {
					errs <- err
				}
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Errorf("concurrent Put failed: %v", err)
		}

		entries, err := b.ScanPrefix(ctx, "Entity/")
		if err != nil {
			t.Fatalf("ScanPrefix failed: %v", err)
		}
		if len(entries) != 20 {
			t.Errorf("expected 20 entries, got %d", len(entries))
		}
	})
}
