package consent

import (
	"context"
	stderrors "errors"
	"testing"
)

func TestLazyBuildsOnce(t *testing.T) {
	builds := 0
	l := NewLazy(func() (*Manager, error) {
		builds++
		return NewManager(), nil
	})

	if l.Loaded() {
		t.Fatal("Lazy should not build before Get")
	}

	a, err := l.Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	b, _ := l.Get(context.Background())

	if a != b {
		t.Error("Get should return the same Manager")
	}
	if builds != 1 {
		t.Errorf("built %d times, want 1", builds)
	}
	if !l.Loaded() {
		t.Error("Loaded() should be true after Get")
	}
}

func TestLazyCachesError(t *testing.T) {
	cause := stderrors.New("no config")
	builds := 0
	l := NewLazy(func() (*Manager, error) {
		builds++
		return nil, cause
	})

	for i := 0; i < 2; i++ {
		if _, err := l.Get(context.Background()); !stderrors.Is(err, cause) {
			t.Errorf("Get() = %v, want %v", err, cause)
		}
	}
	if builds != 1 {
		t.Errorf("built %d times, want 1", builds)
	}
}

func TestLazyCanceledContext(t *testing.T) {
	l := NewLazy(func() (*Manager, error) {
		t.Error("build should not run for a canceled context")
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Get(ctx); !stderrors.Is(err, context.Canceled) {
		t.Errorf("Get() = %v, want context.Canceled", err)
	}
	if l.Loaded() {
		t.Error("Loaded() should stay false")
	}
}
