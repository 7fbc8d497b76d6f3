package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
)

// setupTestStore opens an in-memory SQLite store for testing.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetSettingMissing(t *testing.T) {
	s := setupTestStore(t)

	v, ok, err := s.GetSetting(context.Background(), KeyProfiles)
	if err != nil {
		t.Fatalf("GetSetting: %v", err)
	}
	if ok || v != "" {
		t.Errorf("expected missing key, got ok=%v value=%q", ok, v)
	}
}

func TestSetAndGetSetting(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if err := s.SetSetting(ctx, KeySettings, `{"theme":"dark"}`); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	v, ok, err := s.GetSetting(ctx, KeySettings)
	if err != nil || !ok {
		t.Fatalf("GetSetting: ok=%v err=%v", ok, err)
	}
	if v != `{"theme":"dark"}` {
		t.Errorf("value = %q", v)
	}

	// Overwrite in place
	if err := s.SetSetting(ctx, KeySettings, `{"theme":"light"}`); err != nil {
		t.Fatalf("SetSetting overwrite: %v", err)
	}
	v, _, _ = s.GetSetting(ctx, KeySettings)
	if v != `{"theme":"light"}` {
		t.Errorf("value after overwrite = %q", v)
	}

	var count int64
	s.db.Model(&Setting{}).Where("key = ?", KeySettings).Count(&count)
	if count != 1 {
		t.Errorf("expected 1 row after overwrite, got %d", count)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	s.SetSetting(ctx, KeySalt, "aa")
	s.SetSetting(ctx, KeyProfiles, "bb")
	if err := s.DeleteSetting(ctx, KeyProfiles); err != nil {
		t.Fatalf("DeleteSetting: %v", err)
	}

	if _, ok, _ := s.GetSetting(ctx, KeyProfiles); ok {
		t.Error("profiles should be deleted")
	}
	if v, ok, _ := s.GetSetting(ctx, KeySalt); !ok || v != "aa" {
		t.Errorf("salt should be untouched, got ok=%v v=%q", ok, v)
	}
}

func TestEnsureSettingCreatesOnce(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	calls := 0
	gen := func() (string, error) {
		calls++
		return fmt.Sprintf("value-%d", calls), nil
	}

	first, err := s.EnsureSetting(ctx, KeySalt, gen)
	if err != nil {
		t.Fatalf("EnsureSetting: %v", err)
	}
	second, err := s.EnsureSetting(ctx, KeySalt, gen)
	if err != nil {
		t.Fatalf("EnsureSetting: %v", err)
	}
	if first != "value-1" || second != "value-1" {
		t.Errorf("expected stable value-1, got %q then %q", first, second)
	}
	if calls != 1 {
		t.Errorf("generator called %d times, want 1", calls)
	}
}

func TestEnsureSettingConcurrent(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "concurrent.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	var n atomic.Int32
	gen := func() (string, error) {
		return fmt.Sprintf("gen-%d", n.Add(1)), nil
	}

	const workers = 8
	results := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := s.EnsureSetting(context.Background(), KeySalt, gen)
			if err != nil {
				t.Errorf("worker %d: %v", i, err)
				return
			}
			results[i] = v
		}(i)
	}
	wg.Wait()

	for i, v := range results {
		if v != results[0] {
			t.Errorf("worker %d saw %q, worker 0 saw %q", i, v, results[0])
		}
	}
}

func TestEnsureSettingGeneratorError(t *testing.T) {
	s := setupTestStore(t)
	boom := errors.New("no entropy")

	_, err := s.EnsureSetting(context.Background(), KeySalt, func() (string, error) {
		return "", boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected generator error, got %v", err)
	}
	if _, ok, _ := s.GetSetting(context.Background(), KeySalt); ok {
		t.Error("nothing should be stored when the generator fails")
	}
}

func TestPing(t *testing.T) {
	s := setupTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
