// Package session establishes and holds the process-wide anonymous
// identity. One sign-in attempt happens at startup; on failure the
// identity simply stays absent and every dependent operation is expected
// to degrade (drop submissions, report no history).
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"linkscout/internal/logging"
	"linkscout/internal/model"
	"linkscout/internal/webclient"
)

// signUpPath is the identity provider's anonymous sign-in operation.
const signUpPath = "/v1/accounts:signUp"

// Manager owns the current identity and fans out auth-state changes to
// subscribers. Safe for concurrent use.
type Manager struct {
	wc       webclient.WebClient
	endpoint string
	apiKey   string
	logger   logging.Logger

	mu        sync.Mutex
	identity  model.Identity
	subs      map[int]chan model.Identity
	nextSubID int
}

// NewManager wires a Manager against the identity provider at endpoint.
// No network traffic happens until Start.
func NewManager(wc webclient.WebClient, endpoint, apiKey string, logger logging.Logger) *Manager {
	return &Manager{
		wc:       wc,
		endpoint: endpoint,
		apiKey:   apiKey,
		logger:   logger.With(logging.Field{Key: "component", Value: "session"}),
		subs:     make(map[int]chan model.Identity),
	}
}

// Start performs the one anonymous sign-in attempt. Failure is logged and
// swallowed: the identity stays absent and the process keeps running.
func (m *Manager) Start(ctx context.Context) {
	id, err := m.signInAnonymously(ctx)
	if err != nil {
		m.logger.Error("anonymous sign-in failed", logging.Field{Key: "error", Value: err.Error()})
		return
	}

	m.mu.Lock()
	m.identity = id
	subs := make([]chan model.Identity, 0, len(m.subs))
	for _, ch := range m.subs {
		subs = append(subs, ch)
	}
	m.mu.Unlock()

	m.logger.Info("anonymous session established", logging.Field{Key: "identity", Value: string(id)})

	for _, ch := range subs {
		// A subscriber that never drained the initial absent value still has
		// it buffered; evict it so the established identity always lands.
		select {
		case ch <- id:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- id:
			default:
			}
		}
	}
}

// Identity returns the current identity and whether one exists.
func (m *Manager) Identity() (model.Identity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity, m.identity != ""
}

// Subscribe returns a stream of auth-state changes and a cancel func.
// The current state is delivered immediately so late subscribers do not
// miss an already-established identity. The empty Identity means absent.
func (m *Manager) Subscribe() (<-chan model.Identity, func()) {
	ch := make(chan model.Identity, 1)

	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subs[id] = ch
	ch <- m.identity
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
	return ch, cancel
}

func (m *Manager) signInAnonymously(ctx context.Context) (model.Identity, error) {
	url := fmt.Sprintf("%s%s?key=%s", m.endpoint, signUpPath, m.apiKey)

	body, err := json.Marshal(map[string]bool{"returnSecureToken": true})
	if err != nil {
		return "", fmt.Errorf("marshal sign-in body: %w", err)
	}

	resp, err := m.wc.Do(ctx, &webclient.Request{
		Method:  "POST",
		URL:     url,
		Headers: http.Header{"Content-Type": []string{"application/json"}},
		Body:    body,
	})
	if err != nil {
		return "", fmt.Errorf("sign-in request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("sign-in rejected: status %d", resp.StatusCode)
	}

	var parsed struct {
		LocalID string `json:"localId"`
	}
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return "", fmt.Errorf("decode sign-in response: %w", err)
	}
	if parsed.LocalID == "" {
		return "", fmt.Errorf("sign-in response missing localId")
	}
	return model.Identity(parsed.LocalID), nil
}
