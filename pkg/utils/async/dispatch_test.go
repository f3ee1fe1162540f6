package async_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/slipway-ci/slipway/pkg/utils/async"
)

func TestDispatch_RunsHandler(t *testing.T) {
	done := make(chan struct{})

	async.Dispatch(context.Background(), func(ctx context.Context) error {
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("handler was not executed")
	}
}

func TestDispatch_DetachedFromCaller(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // The caller's cancellation must not reach the handler

	done := make(chan error, 1)
	async.Dispatch(ctx, func(ctx context.Context) error {
		done <- ctx.Err()
		return nil
	})

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("handler context was cancelled: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("handler was not executed")
	}
}

func TestDispatch_RecoversPanic(t *testing.T) {
	done := make(chan struct{})

	async.Dispatch(context.Background(), func(ctx context.Context) error {
		defer close(done)
		panic("boom")
	})

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("handler was not executed")
	}
	// Reaching here without the test binary crashing is the assertion

	async.Dispatch(context.Background(), func(ctx context.Context) error {
		return errors.New("logged, not propagated")
	})
	time.Sleep(50 * time.Millisecond)
}

func TestDispatch_ReportsFailures(t *testing.T) {
	events := make(chan *sentry.Event, 4)
	err := sentry.Init(sentry.ClientOptions{
		Dsn: "https://public@sentry.example.com/1",
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			select {
			case events <- event:
			default:
			}
			return nil // drop the event so nothing is sent over the wire
		},
	})
	if err != nil {
		t.Fatalf("sentry init failed: %v", err)
	}

	async.Dispatch(context.Background(), func(ctx context.Context) error {
		return errors.New("pipeline exploded")
	})

	select {
	case event := <-events:
		if len(event.Exception) == 0 || event.Exception[0].Value != "pipeline exploded" {
			t.Errorf("unexpected event: %+v", event)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("handler error was not reported")
	}

	async.Dispatch(context.Background(), func(ctx context.Context) error {
		panic("boom")
	})

	select {
	case <-events:
	case <-time.After(3 * time.Second):
		t.Fatal("handler panic was not reported")
	}
}
