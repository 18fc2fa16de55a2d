package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-runtime/internal/config"
	"github.com/stemsi/exstem-runtime/internal/metrics"
	"github.com/stemsi/exstem-runtime/internal/model"
	"github.com/stemsi/exstem-runtime/internal/session"
	"github.com/stemsi/exstem-runtime/internal/storage"
)

// Session registry errors.
var (
	ErrSessionActive   = errors.New("session already mounted for this candidate, exam and mode")
	ErrSessionNotFound = errors.New("no stored session")
	ErrShuttingDown    = errors.New("server is shutting down")
)

// Backend is the consumed REST surface of one candidate.
type Backend interface {
	session.ExamLoader
	session.ExerciseFetcher
	session.Evaluator
	session.ResultSaver
}

// BackendFactory binds the consumed services to a candidate token.
type BackendFactory func(token string) Backend

// MountRequest identifies the session being opened and where its events go.
type MountRequest struct {
	CandidateID string
	Token       string
	ExamID      string
	Mode        model.Mode
	Notifier    session.Notifier
}

// MountedSession is a running controller owned by one connection.
type MountedSession struct {
	*session.Controller
	cancel context.CancelFunc
}

// Unmount stops the controller (unload flush included) and waits for it.
func (m *MountedSession) Unmount() {
	m.cancel()
	<-m.Done()
}

// SessionService keeps the registry of mounted sessions: at most one controller per
// (candidate, exam, mode).
type SessionService struct {
	cfg      *config.Config
	store    session.Store
	backends BackendFactory
	recorder session.Recorder
	log      zerolog.Logger

	mu       sync.Mutex
	active   map[string]*MountedSession
	closing  bool
	sessions sync.WaitGroup
}

// NewSessionService creates a new SessionService.
func NewSessionService(cfg *config.Config, store session.Store, backends BackendFactory, log zerolog.Logger) *SessionService {
	return &SessionService{
		cfg:      cfg,
		store:    store,
		backends: backends,
		recorder: metrics.Recorder{},
		log:      log.With().Str("component", "session_service").Logger(),
		active:   make(map[string]*MountedSession),
	}
}

func (s *SessionService) options() session.Options {
	return session.Options{
		SnapshotInterval: s.cfg.SnapshotInterval,
		WarningDisplay:   s.cfg.WarningDisplay,
		SubmitTimeout:    s.cfg.SubmitTimeout,
		FetchConcurrency: s.cfg.ExerciseFetchConcurrency,
	}
}

// reserve claims the registry slot for key. A nil entry marks a mount in progress.
func (s *SessionService) reserve(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return ErrShuttingDown
	}
	if _, ok := s.active[key]; ok {
		return ErrSessionActive
	}
	s.active[key] = nil
	return nil
}

func (s *SessionService) release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, key)
}

// Mount initializes a controller (restore or fresh pool) and starts its loop.
// The returned session keeps running until Unmount, submission or exit.
func (s *SessionService) Mount(ctx context.Context, req MountRequest) (*MountedSession, error) {
	key := config.CacheKey.ActiveSessionKey(req.CandidateID, req.ExamID, string(req.Mode))
	if err := s.reserve(key); err != nil {
		return nil, err
	}

	log := s.log.With().Str("candidate_id", req.CandidateID).Logger()
	backend := s.backends(req.Token)
	ctrl := session.NewController(req.ExamID, req.Mode, session.Deps{
		Exams:     backend,
		Exercises: backend,
		Evaluator: backend,
		Results:   backend,
		Store:     storage.ForCandidate(s.store, req.CandidateID),
		Notifier:  req.Notifier,
		Recorder:  s.recorder,
		Log:       log,
	}, s.options())

	if err := ctrl.Init(ctx); err != nil {
		s.release(key)
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	mounted := &MountedSession{Controller: ctrl, cancel: cancel}

	s.mu.Lock()
	s.active[key] = mounted
	s.mu.Unlock()

	gauge := metrics.ActiveSessions.WithLabelValues(string(req.Mode))
	gauge.Inc()
	s.sessions.Add(1)
	go func() {
		defer s.sessions.Done()
		defer s.release(key)
		defer gauge.Dec()
		ctrl.Run(runCtx)
	}()

	log.Info().
		Str("exam_id", req.ExamID).
		Str("mode", string(req.Mode)).
		Bool("restored", ctrl.Restored()).
		Msg("Session mounted")
	return mounted, nil
}

func (s *SessionService) mounted(candidateID, examID string, mode model.Mode) *MountedSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[config.CacheKey.ActiveSessionKey(candidateID, examID, string(mode))]
}

// Status reads the stored snapshot of a candidate without mounting it.
func (s *SessionService) Status(ctx context.Context, candidateID, examID string, mode model.Mode) (*model.SnapshotStatus, error) {
	persister := session.NewPersister(storage.ForCandidate(s.store, candidateID), s.log)
	snap := persister.Load(ctx, examID, mode)
	if snap == nil {
		return nil, ErrSessionNotFound
	}

	remaining := snap.TimeRemainingSeconds
	if len(snap.SelectedItems) > 0 {
		remaining = session.RestoreRemaining(snap.TimeRemainingSeconds, snap.SavedAt(), time.Now(), snap.PauseOnDisconnect)
	}
	savedAt := snap.SavedAt().UTC()
	return &model.SnapshotStatus{
		ExamID:               examID,
		Mode:                 mode,
		Resumable:            snap.Resumable() && remaining > 0,
		Mounted:              s.mounted(candidateID, examID, mode) != nil,
		TimeRemainingSeconds: remaining,
		SavedAt:              &savedAt,
		CurrentItemIndex:     snap.CurrentItemIndex,
		ItemCount:            len(snap.SelectedItems),
	}, nil
}

// Exit abandons a session. A mounted controller performs the exit transition itself;
// otherwise the stored snapshot is removed directly.
func (s *SessionService) Exit(ctx context.Context, candidateID, examID string, mode model.Mode) error {
	if m := s.mounted(candidateID, examID, mode); m != nil {
		if err := m.Exit(ctx); err != nil {
			return fmt.Errorf("exit mounted session: %w", err)
		}
		return nil
	}

	persister := session.NewPersister(storage.ForCandidate(s.store, candidateID), s.log)
	if err := persister.Clear(ctx, examID, mode); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	s.recorder.Exited(mode)
	return nil
}

// Active returns the number of mounted sessions.
func (s *SessionService) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Shutdown unmounts every session, each flushing its snapshot, and waits for them
// or for ctx to end.
func (s *SessionService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	mounted := make([]*MountedSession, 0, len(s.active))
	for _, m := range s.active {
		if m != nil {
			mounted = append(mounted, m)
		}
	}
	s.mu.Unlock()

	for _, m := range mounted {
		m.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info().Int("sessions", len(mounted)).Msg("All sessions unmounted")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
