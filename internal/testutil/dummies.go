// Package testutil provides shared test doubles for use across package
// tests. All dummies implement the corresponding interfaces from the
// production code, allowing injection into components under test without
// real I/O or side effects.
package testutil

import (
	"context"
	"sync"

	"linkscout/internal/logging"
	"linkscout/internal/model"
	"linkscout/internal/webclient"
)

// ─── Logger ────────────────────────────────────────────────────────────

// DummyLogger implements logging.Logger with in-memory recording.
type DummyLogger struct {
	mu     sync.Mutex
	Errors []string
	Infos  []string
	Debugs []string
	Warns  []string
}

func (l *DummyLogger) Debug(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Debugs = append(l.Debugs, msg)
}

func (l *DummyLogger) Info(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Infos = append(l.Infos, msg)
}

func (l *DummyLogger) Warn(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Warns = append(l.Warns, msg)
}

func (l *DummyLogger) Error(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Errors = append(l.Errors, msg)
}

func (l *DummyLogger) With(_ ...logging.Field) logging.Logger { return l }

// ─── WebClient ─────────────────────────────────────────────────────────

// DummyWebClient implements webclient.WebClient. Every request returns
// the configured response; requests are recorded for inspection.
type DummyWebClient struct {
	mu       sync.Mutex
	Requests []*webclient.Request

	RespBody   []byte
	StatusCode int
	Err        error
}

func (c *DummyWebClient) Do(ctx context.Context, req *webclient.Request) (*webclient.Response, error) {
	c.mu.Lock()
	c.Requests = append(c.Requests, req)
	c.mu.Unlock()

	if c.Err != nil {
		return nil, c.Err
	}
	status := c.StatusCode
	if status == 0 {
		status = 200
	}
	return &webclient.Response{
		Request:    req,
		Body:       c.RespBody,
		StatusCode: status,
	}, nil
}

func (c *DummyWebClient) Get(ctx context.Context, url string) (*webclient.Response, error) {
	return c.Do(ctx, &webclient.Request{Method: "GET", URL: url})
}

func (c *DummyWebClient) Close() error { return nil }

// ─── Session ───────────────────────────────────────────────────────────

// FixedIdentity implements the IdentityProvider/SessionView contract with
// a constant identity. Empty means absent.
type FixedIdentity struct {
	ID model.Identity
}

func (f *FixedIdentity) Identity() (model.Identity, bool) {
	return f.ID, f.ID != ""
}

// Subscribe mirrors the session manager's stream: the current state is
// buffered up front. The fixed identity never changes afterwards.
func (f *FixedIdentity) Subscribe() (<-chan model.Identity, func()) {
	ch := make(chan model.Identity, 1)
	ch <- f.ID
	return ch, func() {}
}

// ─── Classifier ────────────────────────────────────────────────────────

// DummyClassifier returns a fixed verdict or error and counts calls.
type DummyClassifier struct {
	mu    sync.Mutex
	Calls int

	Verdict model.Verdict
	Err     error

	// Block, when non-nil, is received from before returning; lets tests
	// hold a classification in flight.
	Block chan struct{}
}

func (d *DummyClassifier) Classify(ctx context.Context, url string) (model.Verdict, error) {
	d.mu.Lock()
	d.Calls++
	d.mu.Unlock()

	if d.Block != nil {
		<-d.Block
	}
	if d.Err != nil {
		return model.Verdict{}, d.Err
	}
	return d.Verdict, nil
}

func (d *DummyClassifier) CallCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Calls
}

// DummyFactSource serves a fixed fun fact.
type DummyFactSource struct {
	Fact string
}

func (d *DummyFactSource) FunFact(ctx context.Context) string { return d.Fact }

// ─── History ───────────────────────────────────────────────────────────

// DummyAppender records appended scan records in memory.
type DummyAppender struct {
	mu      sync.Mutex
	Records []model.ScanRecord

	Err error
}

func (d *DummyAppender) Append(ctx context.Context, identity model.Identity, record model.ScanRecord) (model.ScanRecord, error) {
	if d.Err != nil {
		return model.ScanRecord{}, d.Err
	}
	record.ID = "dummy-id"
	d.mu.Lock()
	d.Records = append(d.Records, record)
	d.mu.Unlock()
	return record, nil
}

func (d *DummyAppender) Stored() []model.ScanRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]model.ScanRecord, len(d.Records))
	copy(out, d.Records)
	return out
}
