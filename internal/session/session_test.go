package session_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"linkscout/internal/session"
	"linkscout/internal/testutil"
	"linkscout/internal/webclient"
)

func newTestManager(t *testing.T, handler http.HandlerFunc) (*session.Manager, *testutil.DummyLogger) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	logger := &testutil.DummyLogger{}
	wc, err := webclient.NewNetHTTPClient(webclient.Config{}, logger, ts.Client())
	if err != nil {
		t.Fatalf("NewNetHTTPClient: %v", err)
	}
	t.Cleanup(func() { wc.Close() })

	return session.NewManager(wc, ts.URL, "test-key", logger), logger
}

// ─── Start / Identity ──────────────────────────────────────────────────

func TestManager_Start_EstablishesIdentity(t *testing.T) {
	t.Parallel()
	var gotPath string
	m, _ := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
		_ = json.NewEncoder(w).Encode(map[string]string{"localId": "anon-123", "idToken": "tok"})
	})

	if _, ok := m.Identity(); ok {
		t.Fatal("expected no identity before Start")
	}

	m.Start(context.Background())

	id, ok := m.Identity()
	if !ok {
		t.Fatal("expected identity after Start")
	}
	if string(id) != "anon-123" {
		t.Errorf("expected identity anon-123, got %q", id)
	}
	if !strings.Contains(gotPath, "/v1/accounts:signUp") || !strings.Contains(gotPath, "key=test-key") {
		t.Errorf("unexpected sign-in path %q", gotPath)
	}
}

func TestManager_Start_FailureIsNonFatal(t *testing.T) {
	t.Parallel()
	m, logger := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	m.Start(context.Background())

	if _, ok := m.Identity(); ok {
		t.Fatal("expected identity to stay absent after rejected sign-in")
	}
	if len(logger.Errors) == 0 {
		t.Error("expected the failure to be logged")
	}
}

func TestManager_Start_MissingLocalID_IsFailure(t *testing.T) {
	t.Parallel()
	m, _ := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"idToken": "tok"})
	})

	m.Start(context.Background())

	if _, ok := m.Identity(); ok {
		t.Fatal("expected no identity when localId is missing")
	}
}

// ─── Subscribe ─────────────────────────────────────────────────────────

func TestManager_Subscribe_DeliversCurrentThenChanges(t *testing.T) {
	t.Parallel()
	m, _ := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"localId": "anon-42"})
	})

	ch, cancel := m.Subscribe()
	defer cancel()

	// Current state (absent) arrives immediately.
	select {
	case id := <-ch:
		if id != "" {
			t.Fatalf("expected absent identity first, got %q", id)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for initial auth state")
	}

	m.Start(context.Background())

	select {
	case id := <-ch:
		if string(id) != "anon-42" {
			t.Fatalf("expected anon-42, got %q", id)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for auth state change")
	}
}

func TestManager_Subscribe_UndrainedSubscriberStillLearnsIdentity(t *testing.T) {
	t.Parallel()
	m, _ := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"localId": "anon-99"})
	})

	// Subscribe but do not drain the buffered absent state before sign-in
	// completes; the established identity must supersede it.
	ch, cancel := m.Subscribe()
	defer cancel()

	m.Start(context.Background())

	id, ok := m.Identity()
	if !ok || string(id) != "anon-99" {
		t.Fatalf("expected identity anon-99, got %q (ok=%v)", id, ok)
	}

	select {
	case got := <-ch:
		if got != id {
			t.Fatalf("stream disagrees with Identity(): got %q, want %q", got, id)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for auth state")
	}
}

func TestManager_Subscribe_CancelStopsDelivery(t *testing.T) {
	t.Parallel()
	m, _ := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"localId": "anon-7"})
	})

	ch, cancel := m.Subscribe()
	<-ch // drain initial state
	cancel()

	m.Start(context.Background())

	select {
	case id, ok := <-ch:
		if ok {
			t.Fatalf("expected no delivery after cancel, got %q", id)
		}
	case <-time.After(100 * time.Millisecond):
		// nothing delivered: correct
	}
}
