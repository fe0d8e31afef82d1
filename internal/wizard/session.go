package wizard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/healthfirst/portal/internal/platform/notification"
)

// DefaultAutosaveInterval is how often a mounted session snapshots its bag.
const DefaultAutosaveInterval = 30 * time.Second

var (
	ErrNotMounted = errors.New("session is not mounted")
	ErrSubmission = errors.New("submission failed")
)

// SessionConfig wires a session to its collaborators.
type SessionConfig struct {
	ID        string
	Owner     string
	Flow      *Flow
	Drafts    *Drafts
	Submitter Submitter
	Notifier  notification.Notifier
	Logger    zerolog.Logger

	AutosaveInterval time.Duration
	Now              func() time.Time
}

// Session is one mounted wizard. All state transitions are serialized
// through the session lock; the submission call runs outside it while the
// state reports Submitting, which makes every other action fail with
// ErrBusy.
type Session struct {
	id        string
	owner     string
	flow      *Flow
	drafts    *Drafts
	submitter Submitter
	notifier  notification.Notifier
	logger    zerolog.Logger
	interval  time.Duration
	now       func() time.Time

	mu         sync.Mutex
	state      State
	mounted    bool
	lastActive time.Time
	stop       context.CancelFunc
	wg         sync.WaitGroup

	// saveMu orders snapshot writes so an older bag never lands after a
	// newer one.
	saveMu sync.Mutex
}

func NewSession(cfg SessionConfig) *Session {
	if cfg.AutosaveInterval <= 0 {
		cfg.AutosaveInterval = DefaultAutosaveInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notification.Discard
	}
	return &Session{
		id:        cfg.ID,
		owner:     cfg.Owner,
		flow:      cfg.Flow,
		drafts:    cfg.Drafts,
		submitter: cfg.Submitter,
		notifier:  cfg.Notifier,
		logger: cfg.Logger.With().
			Str("flow", cfg.Flow.Name).
			Str("session_id", cfg.ID).
			Str("owner", cfg.Owner).
			Logger(),
		interval: cfg.AutosaveInterval,
		now:      cfg.Now,
	}
}

func (s *Session) ID() string    { return s.id }
func (s *Session) Owner() string { return s.owner }
func (s *Session) Flow() *Flow   { return s.flow }

// Mount loads the draft once, exposes the first state and starts the
// autosave loop. Mounting twice is a no-op.
func (s *Session) Mount(ctx context.Context) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mounted {
		return s.state.Clone()
	}

	bag, restored := s.drafts.Load(ctx)
	s.state = s.flow.Start(bag)
	s.mounted = true
	s.lastActive = s.now()

	loopCtx, cancel := context.WithCancel(context.Background())
	s.stop = cancel
	s.wg.Add(1)
	go s.autosave(loopCtx)

	if restored {
		s.logger.Info().Msg("draft restored")
		s.notify(ctx, "Draft Loaded", "Your previous progress has been restored.", notification.SeverityInfo)
	}
	return s.state.Clone()
}

func (s *Session) autosave(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Save(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Msg("autosave")
				continue
			}
			s.logger.Debug().Msg("autosaved draft")
		}
	}
}

// Save snapshots the current bag. A submitted session has nothing left to
// save.
func (s *Session) Save(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	if !s.mounted {
		s.mu.Unlock()
		return ErrNotMounted
	}
	if s.state.Status == StatusSubmitted {
		s.mu.Unlock()
		return nil
	}
	bag := s.state.Bag.Clone()
	s.mu.Unlock()

	return s.drafts.Save(ctx, bag)
}

// State returns a copy of the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// View renders the current state for clients.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.flow.View(s.state, s.now())
	v.SessionID = s.id
	return v
}

// LastActive is when a client last used the session.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// touch marks a client request. Autosave does not count.
func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = s.now()
	s.mu.Unlock()
}

// Dispatch applies a to the session state. Submission outcomes are driven by
// Submit and cannot be dispatched.
func (s *Session) Dispatch(a Action) (State, error) {
	switch a.(type) {
	case Submit, SubmitSucceeded, SubmitFailed:
		return s.State(), fmt.Errorf("dispatch %T: use Submit", a)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mounted {
		return s.state.Clone(), ErrNotMounted
	}
	next, err := s.flow.Reduce(s.state, a)
	s.state = next
	s.lastActive = s.now()
	return next.Clone(), err
}

// Submit validates the whole bag and, when it passes, hands the values to
// the submitter. On success the draft is cleared; on failure the wizard
// returns to the final step with the bag intact. There is no retry.
func (s *Session) Submit(ctx context.Context) (State, error) {
	s.mu.Lock()
	if !s.mounted {
		st := s.state.Clone()
		s.mu.Unlock()
		return st, ErrNotMounted
	}
	next, err := s.flow.Reduce(s.state, Submit{})
	s.state = next
	s.lastActive = s.now()
	if err != nil {
		s.mu.Unlock()
		return next.Clone(), err
	}
	values := next.Bag.Values()
	s.mu.Unlock()

	id, subErr := s.submitter.Submit(ctx, s.flow.Name, values)

	s.mu.Lock()
	if subErr != nil {
		s.state, _ = s.flow.Reduce(s.state, SubmitFailed{Err: subErr})
		st := s.state.Clone()
		s.mu.Unlock()

		s.logger.Warn().Err(subErr).Msg("submission failed")
		s.notify(ctx, "Submission Failed", subErr.Error(), notification.SeverityError)
		return st, fmt.Errorf("%w: %w", ErrSubmission, subErr)
	}
	s.state, _ = s.flow.Reduce(s.state, SubmitSucceeded{ID: id})
	st := s.state.Clone()
	s.mu.Unlock()

	s.stopAutosave()
	s.saveMu.Lock()
	clearErr := s.drafts.Clear(ctx)
	s.saveMu.Unlock()
	if clearErr != nil {
		s.logger.Error().Err(clearErr).Msg("clear draft after submission")
	}

	s.logger.Info().Str("submission_id", id).Msg("wizard submitted")
	s.notify(ctx, s.flow.Title+" Complete", "Reference ID: "+id, notification.SeveritySuccess)
	return st, nil
}

func (s *Session) stopAutosave() {
	s.mu.Lock()
	stop := s.stop
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
	s.wg.Wait()
}

// Unmount stops the autosave loop, waits for it to exit and takes a final
// snapshot unless the wizard was submitted.
func (s *Session) Unmount(ctx context.Context) error {
	s.mu.Lock()
	if !s.mounted {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.stopAutosave()
	err := s.Save(ctx)

	s.mu.Lock()
	s.mounted = false
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("final save: %w", err)
	}
	return nil
}

func (s *Session) notify(ctx context.Context, title, message string, severity notification.Severity) {
	s.notifier.Notify(ctx, notification.Notice{
		Topic:    s.id,
		Title:    title,
		Message:  message,
		Severity: severity,
	})
}
