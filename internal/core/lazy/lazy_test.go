package lazy

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestValue_ComputedOnce(t *testing.T) {
	var calls atomic.Int32
	v := New(func() (int, error) {
		calls.Add(1)
		time.Sleep(10 * time.Millisecond)
		return 45, nil
	})

	if v.Loaded() {
		t.Fatal("value should not be loaded before first Get")
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := v.Get()
			if err != nil {
				t.Errorf("Get failed: %v", err)
				return
			}
			if got != 45 {
				t.Errorf("expected 45, got %d", got)
			}
		}()
	}
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Errorf("expected init to run once, ran %d times", n)
	}
	if !v.Loaded() {
		t.Error("value should be loaded")
	}
}

func TestValue_ErrorNotCached(t *testing.T) {
	var calls int
	v := New(func() (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("boom")
		}
		return "ok", nil
	})

	if _, err := v.Get(); err == nil {
		t.Fatal("first Get should fail")
	}
	if v.Loaded() {
		t.Fatal("failed computation must not be cached")
	}

	got, err := v.Get()
	if err != nil {
		t.Fatalf("second Get failed: %v", err)
	}
	if got != "ok" {
		t.Errorf("expected ok, got %s", got)
	}

	if _, err := v.Get(); err != nil || calls != 2 {
		t.Errorf("expected cached value after success, calls=%d err=%v", calls, err)
	}
}

func TestValue_NilInterface(t *testing.T) {
	v := New(func() (error, error) {
		return nil, nil
	})

	got, err := v.Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %v", got)
	}
	if !v.Loaded() {
		t.Error("nil result should still be cached")
	}
}
