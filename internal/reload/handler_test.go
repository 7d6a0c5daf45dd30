package reload

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

type fakeReloader struct {
	err   error
	calls int
}

func (f *fakeReloader) Reload() error {
	f.calls++
	return f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandler_HandleReload(t *testing.T) {
	t.Parallel()

	target := &fakeReloader{}
	notified := 0
	h := NewHandler(target, discardLogger(), func() { notified++ })

	if err := h.HandleReload(context.Background()); err != nil {
		t.Fatalf("HandleReload: %v", err)
	}
	if target.calls != 1 || notified != 1 {
		t.Errorf("calls = %d, notified = %d, want 1/1", target.calls, notified)
	}
}

func TestHandler_HandleReloadError(t *testing.T) {
	t.Parallel()

	boom := errors.New("bad json")
	notified := false
	h := NewHandler(&fakeReloader{err: boom}, discardLogger(), func() { notified = true })

	if err := h.HandleReload(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("HandleReload() = %v, want wrapped boom", err)
	}
	if notified {
		t.Error("onReload must not run after a failed reload")
	}
}

func TestHandler_CancelledContext(t *testing.T) {
	t.Parallel()

	target := &fakeReloader{}
	h := NewHandler(target, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := h.HandleReload(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("HandleReload() = %v, want context.Canceled", err)
	}
	if target.calls != 0 {
		t.Error("reload ran with a cancelled context")
	}
}
