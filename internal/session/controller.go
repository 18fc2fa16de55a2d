package session

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-runtime/internal/model"
)

// ExamLoader fetches an exam's configuration.
type ExamLoader interface {
	FetchExam(ctx context.Context, examID string) (*model.ExamConfig, error)
}

// Deps are the ports a controller drives.
type Deps struct {
	Exams     ExamLoader
	Exercises ExerciseFetcher
	Evaluator Evaluator
	Results   ResultSaver
	Store     Store
	Notifier  Notifier
	// Recorder is optional.
	Recorder Recorder
	// Rand is optional; tests pass a seeded source.
	Rand *rand.Rand
	// Now is optional; defaults to time.Now.
	Now func() time.Time
	Log zerolog.Logger
}

// Options tune a controller's timers.
type Options struct {
	TickInterval     time.Duration
	SnapshotInterval time.Duration
	WarningDisplay   time.Duration
	SubmitTimeout    time.Duration
	FetchConcurrency int
}

func (o Options) withDefaults() Options {
	if o.TickInterval <= 0 {
		o.TickInterval = time.Second
	}
	if o.SnapshotInterval <= 0 {
		o.SnapshotInterval = 5 * time.Second
	}
	if o.WarningDisplay <= 0 {
		o.WarningDisplay = 5 * time.Second
	}
	if o.SubmitTimeout <= 0 {
		o.SubmitTimeout = 30 * time.Second
	}
	return o
}

type command struct {
	fn    func() error
	reply chan error
}

// Controller owns one mounted session. Every state change runs on the goroutine executing Run;
// the exported methods post commands into that loop and wait for their outcome.
type Controller struct {
	examID string
	mode   model.Mode
	deps   Deps
	opts   Options
	log    zerolog.Logger
	now    func() time.Time

	persister *Persister
	pipeline  *Pipeline

	cmds     chan command
	dismiss  chan string
	results  chan *model.SessionResult
	done     chan struct{}
	inflight sync.WaitGroup

	// Loop-owned state.
	exam      *model.ExamConfig
	items     []model.TestItem
	store     *AnswerStore
	steps     *StepEngine
	clock     *Clock
	monitor   *Monitor
	itemIndex int
	stepIndex int
	flagged   map[int]bool
	dialog    model.Dialog
	restored  bool
	stopping  bool
	timers    map[string]*time.Timer
}

// NewController creates an unmounted controller for (examID, mode).
func NewController(examID string, mode model.Mode, deps Deps, opts Options) *Controller {
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	log := deps.Log.With().Str("exam_id", examID).Str("mode", string(mode)).Logger()
	persister := NewPersister(deps.Store, log)

	return &Controller{
		examID:    examID,
		mode:      mode,
		deps:      deps,
		opts:      opts.withDefaults(),
		log:       log.With().Str("component", "session_controller").Logger(),
		now:       deps.Now,
		persister: persister,
		pipeline:  NewPipeline(deps.Evaluator, deps.Results, persister, log),
		cmds:      make(chan command),
		dismiss:   make(chan string, 8),
		results:   make(chan *model.SessionResult, 1),
		done:      make(chan struct{}),
		store:     NewAnswerStore(),
		flagged:   make(map[int]bool),
		timers:    make(map[string]*time.Timer),
	}
}

// Init performs the mount transition. A resumable snapshot is always checked before sampling,
// so a restored session never gets a different pool.
func (c *Controller) Init(ctx context.Context) error {
	if !c.mode.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, c.mode)
	}

	exam, err := c.deps.Exams.FetchExam(ctx, c.examID)
	if err != nil {
		return fmt.Errorf("load exam: %w", err)
	}
	c.exam = exam
	c.steps = NewStepEngine(c.store)

	if snap := c.persister.Load(ctx, c.examID, c.mode); snap.Resumable() {
		c.restore(snap)
		c.log.Info().
			Int("time_remaining", c.clock.Remaining()).
			Int("items", len(c.items)).
			Msg("Session restored")
	} else {
		builder := NewPoolBuilder(c.deps.Exercises, c.deps.Rand, c.opts.FetchConcurrency, c.log)
		pool, err := builder.Build(ctx, exam, c.mode)
		if err != nil {
			return fmt.Errorf("build pool: %w", err)
		}
		if len(pool.Items) == 0 {
			return ErrEmptyPool
		}
		c.deps.Recorder.PoolBuilt(c.mode, len(pool.Items), pool.Dropped)

		c.items = pool.Items
		c.store.Seed(pool.Answers)
		c.clock = NewClock(exam.DurationSeconds())
		c.monitor = NewMonitor(exam.PauseOnDisconnect, c.now)
		c.resetStep()
		c.log.Info().
			Int("items", len(c.items)).
			Int("dropped_exercises", pool.Dropped).
			Msg("Session started")
	}

	c.flush(ctx)
	return nil
}

func (c *Controller) restore(snap *model.SessionSnapshot) {
	c.restored = true
	c.items = snap.SelectedItems
	c.store.restore(snap)
	remaining := RestoreRemaining(snap.TimeRemainingSeconds, snap.SavedAt(), c.now(), snap.PauseOnDisconnect)
	c.clock = NewClock(remaining)
	c.monitor = NewMonitor(snap.PauseOnDisconnect, c.now)
	c.itemIndex = clamp(snap.CurrentItemIndex, 0, len(c.items)-1)
	c.stepIndex = snap.CurrentStepIndex
	if ex := c.items[c.itemIndex].Exercise; ex != nil {
		if !c.steps.CanShow(ex, c.stepIndex) {
			c.stepIndex = c.store.FirstPendingStep(ex)
		}
	} else {
		c.stepIndex = 0
	}
	for _, i := range snap.FlaggedIndices {
		if i >= 0 && i < len(c.items) {
			c.flagged[i] = true
		}
	}
}

// Restored reports whether Init resumed a stored session.
func (c *Controller) Restored() bool {
	return c.restored
}

// Done is closed once the controller loop has stopped.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Run drives the session until it is submitted, exited or ctx is cancelled (unmount).
func (c *Controller) Run(ctx context.Context) {
	defer close(c.done)

	tick := time.NewTicker(c.opts.TickInterval)
	defer tick.Stop()
	snapshots := time.NewTicker(c.opts.SnapshotInterval)
	defer snapshots.Stop()

	defer func() {
		for _, t := range c.timers {
			t.Stop()
		}
		c.inflight.Wait()
	}()

	c.emitState()
	if c.clock.CheckExpired() {
		c.expire(ctx)
	}

	for !c.stopping {
		select {
		case <-ctx.Done():
			// Unload flush. Once a submission or exit has started the snapshot belongs to it.
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			c.flush(flushCtx)
			cancel()
			c.log.Info().Int("time_remaining", c.clock.Remaining()).Msg("Session unmounted")
			return

		case <-tick.C:
			c.tick(ctx)

		case <-snapshots.C:
			c.flush(ctx)

		case id := <-c.dismiss:
			if _, ok := c.timers[id]; ok {
				delete(c.timers, id)
				c.deps.Notifier.Dismiss(id)
			}

		case res := <-c.results:
			c.handoff(res)

		case cmd := <-c.cmds:
			cmd.reply <- cmd.fn()
		}
	}
}

func (c *Controller) do(ctx context.Context, fn func() error) error {
	cmd := command{fn: fn, reply: make(chan error, 1)}
	select {
	case c.cmds <- cmd:
	case <-c.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// mutate runs fn against an open session and pushes the new state.
func (c *Controller) mutate(ctx context.Context, fn func() error) error {
	return c.do(ctx, func() error {
		if err := c.writable(); err != nil {
			return err
		}
		if err := fn(); err != nil {
			return err
		}
		c.emitState()
		return nil
	})
}

func (c *Controller) writable() error {
	if c.stopping || c.clock.Expired() {
		return ErrSessionClosed
	}
	switch c.pipeline.State() {
	case model.PipelineIdle:
		return nil
	case model.PipelineSubmitting:
		return ErrSubmissionInFlight
	default:
		return ErrAlreadySubmitted
	}
}

func (c *Controller) item(itemID string) (*model.TestItem, error) {
	for i := range c.items {
		if c.items[i].ID == itemID {
			return &c.items[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownItem, itemID)
}

// SetAnswer replaces a question's answer.
func (c *Controller) SetAnswer(ctx context.Context, itemID string, v model.AnswerValue) error {
	return c.mutate(ctx, func() error {
		it, err := c.item(itemID)
		if err != nil {
			return err
		}
		return c.store.SetAnswer(it, v)
	})
}

// Swap exchanges two positions of an ordering question.
func (c *Controller) Swap(ctx context.Context, itemID string, from, to int) error {
	return c.mutate(ctx, func() error {
		it, err := c.item(itemID)
		if err != nil {
			return err
		}
		return c.store.SwapOrder(it, from, to)
	})
}

// AssignBlank places an option into a drag_drop blank.
func (c *Controller) AssignBlank(ctx context.Context, itemID, blankID, optionID string) error {
	return c.mutate(ctx, func() error {
		it, err := c.item(itemID)
		if err != nil {
			return err
		}
		return c.store.AssignBlank(it, blankID, optionID)
	})
}

// ClearBlank empties a drag_drop blank.
func (c *Controller) ClearBlank(ctx context.Context, itemID, blankID string) error {
	return c.mutate(ctx, func() error {
		it, err := c.item(itemID)
		if err != nil {
			return err
		}
		return c.store.ClearBlank(it, blankID)
	})
}

// AssignColumn moves an option into a column_grouping column.
func (c *Controller) AssignColumn(ctx context.Context, itemID, columnID, optionID string) error {
	return c.mutate(ctx, func() error {
		it, err := c.item(itemID)
		if err != nil {
			return err
		}
		return c.store.AssignColumn(it, columnID, optionID)
	})
}

// ToggleFlag flips the review flag of the item at index.
func (c *Controller) ToggleFlag(ctx context.Context, index int) error {
	return c.mutate(ctx, func() error {
		if index < 0 || index >= len(c.items) {
			return fmt.Errorf("%w: item %d", ErrInvalidPosition, index)
		}
		if c.flagged[index] {
			delete(c.flagged, index)
		} else {
			c.flagged[index] = true
		}
		return nil
	})
}

// Navigate moves to the item at index, clamped to the pool.
func (c *Controller) Navigate(ctx context.Context, index int) error {
	return c.mutate(ctx, func() error {
		c.itemIndex = clamp(index, 0, len(c.items)-1)
		c.resetStep()
		return nil
	})
}

// SetStep displays another step of the current exercise. Only completed steps and the first
// pending one are reachable.
func (c *Controller) SetStep(ctx context.Context, index int) error {
	return c.mutate(ctx, func() error {
		ex := c.items[c.itemIndex].Exercise
		if ex == nil {
			return ErrNotExercise
		}
		if !c.steps.CanShow(ex, index) {
			return fmt.Errorf("%w: step %d", ErrStepLocked, index)
		}
		c.stepIndex = index
		return nil
	})
}

// ExerciseAction feeds an action outcome on the displayed step of the current exercise.
func (c *Controller) ExerciseAction(ctx context.Context, actionID, input string) (StepResult, error) {
	var res StepResult
	err := c.mutate(ctx, func() error {
		ex := c.items[c.itemIndex].Exercise
		if ex == nil {
			return ErrNotExercise
		}
		r, err := c.steps.Apply(ex, c.stepIndex, actionID, input)
		if err != nil {
			return err
		}
		res = r
		c.stepIndex = r.StepIndex
		if r.NextItem && c.itemIndex < len(c.items)-1 {
			c.itemIndex++
			c.resetStep()
		}
		c.deps.Notifier.StepResult(r)
		return nil
	})
	return res, err
}

// SetOnline records a network transition reported by the client.
func (c *Controller) SetOnline(ctx context.Context, online bool) error {
	return c.do(ctx, func() error {
		if c.monitor.SetOnline(online) {
			c.deps.Notifier.Tick(c.clock.Remaining(), c.monitor.IsPaused())
		}
		return nil
	})
}

// SetVisible records a page visibility transition reported by the client.
func (c *Controller) SetVisible(ctx context.Context, visible bool) error {
	return c.do(ctx, func() error {
		if c.monitor.SetVisible(visible) {
			c.deps.Notifier.Tick(c.clock.Remaining(), c.monitor.IsPaused())
		}
		return nil
	})
}

// OpenDialog records a confirmation dialog opened by the candidate.
func (c *Controller) OpenDialog(ctx context.Context, d model.Dialog) error {
	return c.mutate(ctx, func() error {
		if d != model.DialogSubmit && d != model.DialogExit {
			return fmt.Errorf("%w: %q", ErrInvalidDialog, d)
		}
		c.dialog = d
		return nil
	})
}

// CloseDialog closes the open confirmation dialog, if any.
func (c *Controller) CloseDialog(ctx context.Context) error {
	return c.mutate(ctx, func() error {
		c.dialog = model.DialogNone
		return nil
	})
}

// Submit starts the manual submission. The result arrives through Notifier.Result.
func (c *Controller) Submit(ctx context.Context) error {
	return c.do(ctx, func() error {
		if c.stopping {
			return ErrSessionClosed
		}
		return c.startSubmit(ctx, model.TriggerManual)
	})
}

// Exit abandons the session: the snapshot is deleted and nothing is evaluated.
func (c *Controller) Exit(ctx context.Context) error {
	return c.do(ctx, func() error {
		if err := c.writable(); err != nil {
			return err
		}
		c.stopping = true
		if err := c.persister.Clear(context.WithoutCancel(ctx), c.examID, c.mode); err != nil {
			c.log.Error().Err(err).Msg("Snapshot cleanup on exit failed")
		}
		c.deps.Recorder.Exited(c.mode)
		c.deps.Notifier.Exited()
		c.log.Info().Msg("Session exited")
		return nil
	})
}

// View returns the current session state.
func (c *Controller) View(ctx context.Context) (*model.SessionView, error) {
	var view *model.SessionView
	err := c.do(ctx, func() error {
		view = c.view()
		return nil
	})
	return view, err
}

func (c *Controller) tick(ctx context.Context) {
	if c.pipeline.State() != model.PipelineIdle {
		return
	}
	paused := c.monitor.IsPaused()
	res := c.clock.Tick(paused)
	if res.Warning > 0 {
		c.warn(WarningMessage(res.Warning))
	}
	if res.Advanced || res.Expired {
		c.deps.Notifier.Tick(c.clock.Remaining(), paused)
	}
	if res.Expired {
		c.expire(ctx)
	}
}

func (c *Controller) warn(message string) {
	id := c.deps.Notifier.Warn(message)
	c.timers[id] = time.AfterFunc(c.opts.WarningDisplay, func() {
		select {
		case c.dismiss <- id:
		case <-c.done:
		}
	})
}

func (c *Controller) expire(ctx context.Context) {
	c.dialog = model.DialogNone
	c.deps.Notifier.Expired()
	c.log.Info().Msg("Time expired, submitting")
	if err := c.startSubmit(ctx, model.TriggerExpiry); err != nil {
		c.log.Debug().Err(err).Msg("Expiry submit skipped")
	}
}

func (c *Controller) startSubmit(ctx context.Context, trigger model.SubmitTrigger) error {
	if err := c.pipeline.Begin(); err != nil {
		return err
	}
	c.dialog = model.DialogNone

	elapsed := c.exam.DurationSeconds()
	if trigger == model.TriggerManual {
		elapsed = max(c.exam.DurationSeconds()-c.clock.Remaining(), 0)
	}
	in := SubmitInput{
		ExamID:            c.examID,
		Mode:              c.mode,
		Trigger:           trigger,
		PassingScore:      c.exam.PassingScore,
		ElapsedSeconds:    elapsed,
		Items:             c.items,
		Answers:           c.store.Answers(),
		ExerciseResponses: c.store.ExerciseResponses(),
	}
	c.emitState()

	// The submission outlives an unmount: the candidate's answers are graded and the
	// snapshot cleared even when the socket drops mid-flight.
	subCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.SubmitTimeout)
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		defer cancel()
		res := c.pipeline.Run(subCtx, in)
		select {
		case c.results <- res:
		case <-c.done:
			c.log.Info().Str("outcome", string(res.Outcome)).Msg("Result ready after unmount, dropped")
		}
	}()
	return nil
}

func (c *Controller) handoff(res *model.SessionResult) {
	c.stopping = true
	c.deps.Recorder.Submitted(res)
	c.deps.Notifier.Result(res)
}

func (c *Controller) flush(ctx context.Context) {
	if c.stopping || c.pipeline.State() != model.PipelineIdle {
		return
	}
	err := c.persister.Save(ctx, c.snapshot())
	c.deps.Recorder.SnapshotFlushed(err)
	if err != nil {
		c.log.Warn().Err(err).Msg("Snapshot flush failed")
	}
}

func (c *Controller) resetStep() {
	c.stepIndex = 0
	if len(c.items) == 0 {
		return
	}
	if ex := c.items[c.itemIndex].Exercise; ex != nil {
		c.stepIndex = c.store.FirstPendingStep(ex)
	}
}

func (c *Controller) flaggedIndices() []int {
	out := make([]int, 0, len(c.flagged))
	for i := range c.flagged {
		out = append(out, i)
	}
	slices.Sort(out)
	return out
}

func (c *Controller) snapshot() *model.SessionSnapshot {
	return &model.SessionSnapshot{
		ExamID:               c.examID,
		Mode:                 c.mode,
		ExamName:             c.exam.Name,
		TimeRemainingSeconds: c.clock.Remaining(),
		SavedAtEpochMs:       c.now().UnixMilli(),
		PauseOnDisconnect:    c.monitor.PauseOnDisconnect(),
		Answers:              c.store.Answers(),
		ExerciseResponses:    c.store.ExerciseResponses(),
		StepCompleted:        c.store.StepCompletion(),
		ActionErrors:         c.store.ActionErrors(),
		CurrentItemIndex:     c.itemIndex,
		CurrentStepIndex:     c.stepIndex,
		FlaggedIndices:       c.flaggedIndices(),
		OrderingInteracted:   c.store.OrderingInteracted(),
		SelectedItems:        c.items,
	}
}

func (c *Controller) view() *model.SessionView {
	answered := make([]bool, len(c.items))
	count := 0
	for i := range c.items {
		if c.store.IsAnswered(&c.items[i]) {
			answered[i] = true
			count++
		}
	}
	return &model.SessionView{
		ExamID:               c.examID,
		Mode:                 c.mode,
		ExamName:             c.exam.Name,
		TimeRemainingSeconds: c.clock.Remaining(),
		Paused:               c.monitor.IsPaused(),
		Expired:              c.clock.Expired(),
		Pipeline:             c.pipeline.State(),
		Dialog:               c.dialog,
		Items:                c.items,
		CurrentItemIndex:     c.itemIndex,
		CurrentStepIndex:     c.stepIndex,
		Answers:              c.store.Answers(),
		ExerciseResponses:    c.store.ExerciseResponses(),
		StepCompleted:        c.store.StepCompletion(),
		ActionErrors:         c.store.ActionErrors(),
		Answered:             answered,
		AnsweredCount:        count,
		FlaggedIndices:       c.flaggedIndices(),
	}
}

func (c *Controller) emitState() {
	c.deps.Notifier.State(c.view())
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	return min(max(v, lo), hi)
}
