package classifier_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"linkscout/internal/classifier"
	"linkscout/internal/model"
	"linkscout/internal/testutil"
	"linkscout/internal/webclient"
)

const testModel = "gemini-2.5-flash-preview-09-2025"

// generateReply builds a generateContent response whose first candidate
// text is the given string.
func generateReply(text string) map[string]any {
	return map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"parts": []map[string]any{{"text": text}}}},
		},
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*classifier.Client, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	logger := &testutil.DummyLogger{}
	wc, err := webclient.NewNetHTTPClient(webclient.Config{}, logger, ts.Client())
	if err != nil {
		t.Fatalf("NewNetHTTPClient: %v", err)
	}
	t.Cleanup(func() { wc.Close() })

	return classifier.NewClient(wc, ts.URL, testModel, "test-key", logger), ts
}

// ─── Classify ──────────────────────────────────────────────────────────

func TestClassify_Success_ParsesVerdict(t *testing.T) {
	t.Parallel()
	var gotPath string
	var gotBody map[string]any
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(generateReply(`{"status":"safe","reason":"Looks boringly legitimate."}`))
	})

	verdict, err := client.Classify(context.Background(), "http://example-totally-fine.com")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if verdict.Status != model.StatusSafe {
		t.Errorf("expected status safe, got %q", verdict.Status)
	}
	if verdict.Reason != "Looks boringly legitimate." {
		t.Errorf("unexpected reason %q", verdict.Reason)
	}

	if !strings.Contains(gotPath, "/v1beta/models/"+testModel+":generateContent") {
		t.Errorf("unexpected request path %q", gotPath)
	}
	if !strings.Contains(gotPath, "key=test-key") {
		t.Errorf("expected key parameter in %q", gotPath)
	}

	// The wire body must carry the prompt, the JSON-constraining system
	// instruction, and JSON response mode.
	raw, _ := json.Marshal(gotBody)
	for _, want := range []string{
		"Analyze safety of: http://example-totally-fine.com",
		"systemInstruction",
		`"responseMimeType":"application/json"`,
	} {
		if !strings.Contains(string(raw), want) {
			t.Errorf("request body missing %q: %s", want, raw)
		}
	}
}

func TestClassify_MaliciousVerdict(t *testing.T) {
	t.Parallel()
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(generateReply(`{"status":"malicious","reason":"Smells like a prize scam."}`))
	})

	verdict, err := client.Classify(context.Background(), "http://free-prize-click-now.biz")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if verdict.Status != model.StatusMalicious {
		t.Errorf("expected status malicious, got %q", verdict.Status)
	}
}

func TestClassify_NonJSONText_Unavailable(t *testing.T) {
	t.Parallel()
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(generateReply("sorry, I can only speak prose"))
	})

	_, err := client.Classify(context.Background(), "http://example.com")
	if !errors.Is(err, classifier.ErrClassifierUnavailable) {
		t.Fatalf("expected ErrClassifierUnavailable, got %v", err)
	}
}

func TestClassify_UnknownStatus_Unavailable(t *testing.T) {
	t.Parallel()
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(generateReply(`{"status":"fine-ish","reason":"?"}`))
	})

	_, err := client.Classify(context.Background(), "http://example.com")
	if !errors.Is(err, classifier.ErrClassifierUnavailable) {
		t.Fatalf("expected ErrClassifierUnavailable, got %v", err)
	}
}

func TestClassify_MissingCandidates_Unavailable(t *testing.T) {
	t.Parallel()
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"candidates": []any{}})
	})

	_, err := client.Classify(context.Background(), "http://example.com")
	if !errors.Is(err, classifier.ErrClassifierUnavailable) {
		t.Fatalf("expected ErrClassifierUnavailable, got %v", err)
	}
}

func TestClassify_Non2xx_Unavailable(t *testing.T) {
	t.Parallel()
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.Classify(context.Background(), "http://example.com")
	if !errors.Is(err, classifier.ErrClassifierUnavailable) {
		t.Fatalf("expected ErrClassifierUnavailable, got %v", err)
	}
}

func TestClassify_NetworkFailure_Unavailable(t *testing.T) {
	t.Parallel()
	client, ts := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	ts.Close()

	_, err := client.Classify(context.Background(), "http://example.com")
	if !errors.Is(err, classifier.ErrClassifierUnavailable) {
		t.Fatalf("expected ErrClassifierUnavailable, got %v", err)
	}
}

func TestClassify_EmptyURL_Unavailable(t *testing.T) {
	t.Parallel()
	called := false
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	_, err := client.Classify(context.Background(), "")
	if !errors.Is(err, classifier.ErrClassifierUnavailable) {
		t.Fatalf("expected ErrClassifierUnavailable, got %v", err)
	}
	if called {
		t.Error("expected no outbound call for empty url")
	}
}

// ─── FunFact ───────────────────────────────────────────────────────────

func TestFunFact_Success(t *testing.T) {
	t.Parallel()
	var gotBody string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		_ = json.NewEncoder(w).Encode(generateReply("The first webcam watched a coffee pot."))
	})

	fact := client.FunFact(context.Background())
	if fact != "The first webcam watched a coffee pot." {
		t.Errorf("unexpected fact %q", fact)
	}
	// The fun fact call must not request JSON mode.
	if strings.Contains(gotBody, "responseMimeType") {
		t.Errorf("fun fact request should not constrain response type: %s", gotBody)
	}
}

func TestFunFact_EmptyCandidates_UsesDefault(t *testing.T) {
	t.Parallel()
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"candidates": []any{}})
	})

	fact := client.FunFact(context.Background())
	if fact != "The first domain name was symbolics.com." {
		t.Errorf("expected default fact, got %q", fact)
	}
}

func TestFunFact_Failure_UsesFallback(t *testing.T) {
	t.Parallel()
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	fact := client.FunFact(context.Background())
	if fact != "The internet is too wacky to explain right now." {
		t.Errorf("expected fallback fact, got %q", fact)
	}
}
