// Package scan coordinates one URL submission end to end: identity gate,
// classifier call, history write, and the user-visible request state.
package scan

import (
	"context"
	"errors"
	"sync"
	"time"

	"linkscout/internal/logging"
	"linkscout/internal/model"
)

// ErrScanInFlight is returned when a submission arrives while another is
// still running. Single-flight is enforced here rather than trusting the
// caller to disable resubmission.
var ErrScanInFlight = errors.New("a scan is already in flight")

// GenericFailureMessage is the one fixed, apologetic message shown for
// both classification and persistence failures. Raw error detail never
// reaches the user.
const GenericFailureMessage = "The wacky-waves are jammed. Try again."

// Phase is the controller's submission state.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseScanning   Phase = "scanning"
	PhasePersisting Phase = "persisting"
)

// State is a snapshot of the transient per-submission request state. It
// is never persisted and is overwritten by the next submission.
type State struct {
	Phase      Phase             `json:"phase"`
	TargetURL  string            `json:"target_url,omitempty"`
	LastResult *model.ScanRecord `json:"last_result,omitempty"`
	LastError  string            `json:"last_error,omitempty"`
}

// Classifier is the verdict source for submitted URLs.
type Classifier interface {
	Classify(ctx context.Context, url string) (model.Verdict, error)
}

// Appender is the slice of the history store the controller writes through.
type Appender interface {
	Append(ctx context.Context, identity model.Identity, record model.ScanRecord) (model.ScanRecord, error)
}

// IdentityProvider reports the current session identity, if any.
type IdentityProvider interface {
	Identity() (model.Identity, bool)
}

// Controller runs the submission state machine. Safe for concurrent use;
// at most one submission is in flight at a time.
type Controller struct {
	classifier Classifier
	store      Appender
	session    IdentityProvider
	logger     logging.Logger

	// now is swappable for deterministic timestamps in tests.
	now func() time.Time

	mu    sync.Mutex
	state State
}

// NewController wires the controller. All collaborators are injected;
// there is no package-level state.
func NewController(classifier Classifier, store Appender, session IdentityProvider, logger logging.Logger) *Controller {
	return &Controller{
		classifier: classifier,
		store:      store,
		session:    session,
		logger:     logger.With(logging.Field{Key: "component", Value: "scan"}),
		now:        time.Now,
		state:      State{Phase: PhaseIdle},
	}
}

// State returns a copy of the current request state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Submit runs one submission through the state machine.
//
// Guards: an empty url or an absent identity is a silent no-op, returning
// (nil, nil) with zero side effects and no state change; the request is
// simply dropped. A submission while another is in flight returns
// ErrScanInFlight without touching the classifier.
//
// On success the persisted record (with its store-assigned id) is
// returned and kept as LastResult. On classification or persistence
// failure the result is cleared and LastError carries the fixed generic
// message; the caller decides whether to resubmit.
func (c *Controller) Submit(ctx context.Context, url string) (*model.ScanRecord, error) {
	identity, ok := c.session.Identity()
	if url == "" || !ok {
		return nil, nil
	}

	c.mu.Lock()
	if c.state.Phase != PhaseIdle {
		c.mu.Unlock()
		return nil, ErrScanInFlight
	}
	c.state = State{Phase: PhaseScanning, TargetURL: url}
	c.mu.Unlock()

	submittedAt := c.now().UnixMilli()

	verdict, err := c.classifier.Classify(ctx, url)
	if err != nil {
		c.fail(err)
		return nil, err
	}

	c.mu.Lock()
	c.state.Phase = PhasePersisting
	c.mu.Unlock()

	record := model.ScanRecord{
		URL:       url,
		Status:    verdict.Status,
		Reason:    verdict.Reason,
		Timestamp: submittedAt,
	}
	stored, err := c.store.Append(ctx, identity, record)
	if err != nil {
		// The verdict completed but could not be saved. The user sees the
		// same generic failure as a classification error; log the verdict
		// so it is not silently lost.
		c.logger.Warn("verdict lost to persistence failure",
			logging.Field{Key: "url", Value: url},
			logging.Field{Key: "status", Value: string(verdict.Status)},
			logging.Field{Key: "error", Value: err.Error()})
		c.fail(err)
		return nil, err
	}

	c.mu.Lock()
	c.state = State{Phase: PhaseIdle, TargetURL: url, LastResult: &stored}
	c.mu.Unlock()

	c.logger.Info("scan completed",
		logging.Field{Key: "url", Value: url},
		logging.Field{Key: "id", Value: stored.ID},
		logging.Field{Key: "status", Value: string(stored.Status)})
	return &stored, nil
}

// fail resets to Idle with the fixed generic error and no result.
func (c *Controller) fail(err error) {
	c.mu.Lock()
	url := c.state.TargetURL
	c.state = State{Phase: PhaseIdle, TargetURL: url, LastError: GenericFailureMessage}
	c.mu.Unlock()

	c.logger.Warn("scan failed",
		logging.Field{Key: "url", Value: url},
		logging.Field{Key: "error", Value: err.Error()})
}
