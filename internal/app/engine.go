package app

import (
	"context"
	"sync"
	"time"

	"trivia-quiz/internal/domain"
)

// Phase is the lifecycle position of an Engine.
type Phase int

const (
	PhaseInitializing Phase = iota
	PhaseInProgress
	PhaseCompleted
	// PhaseClosed is entered on logout; the engine ignores every further event.
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseInitializing:
		return "initializing"
	case PhaseInProgress:
		return "in_progress"
	case PhaseCompleted:
		return "completed"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// StateStore is where the engine mirrors its state after every mutation.
// Implementations never fail; problems degrade to "nothing saved".
type StateStore interface {
	Save(ctx context.Context, state domain.QuizState)
	Load(ctx context.Context) (domain.QuizState, bool)
	Clear(ctx context.Context)
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithTicker replaces the one-second wall clock ticker.
func WithTicker(newTicker TickerFunc) EngineOption {
	return func(e *Engine) { e.newTicker = newTicker }
}

// WithCompletionHook registers fn to run once per attempt when it completes.
// fn runs without the engine lock held but must not block for long.
func WithCompletionHook(fn func(domain.Result)) EngineOption {
	return func(e *Engine) { e.onComplete = fn }
}

// Engine drives one quiz: question progression, scoring and the countdown.
// It exclusively owns its QuizState and its ticker.
type Engine struct {
	questions  []domain.Question
	timeLimit  int
	store      StateStore
	newTicker  TickerFunc
	onComplete func(domain.Result)

	mu          sync.Mutex
	phase       Phase
	state       domain.QuizState
	ticker      Ticker
	stop        chan struct{}
	subscribers map[chan domain.QuizState]struct{}
}

func NewEngine(questions []domain.Question, timeLimit int, store StateStore, opts ...EngineOption) *Engine {
	if timeLimit < 0 {
		timeLimit = 0
	}
	e := &Engine{
		questions:   append([]domain.Question(nil), questions...),
		timeLimit:   timeLimit,
		store:       store,
		newTicker:   NewTicker,
		phase:       PhaseInitializing,
		state:       domain.NewQuizState(timeLimit),
		subscribers: make(map[chan domain.QuizState]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start restores a compatible snapshot (or starts fresh) and begins the countdown.
// Calling Start more than once has no effect.
func (e *Engine) Start(ctx context.Context) domain.QuizState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase != PhaseInitializing {
		return e.state.Clone()
	}

	if saved, ok := e.store.Load(ctx); ok && e.compatible(saved) {
		e.state = saved
	} else {
		e.state = domain.NewQuizState(e.timeLimit)
	}

	if e.state.IsComplete || e.state.TimeLeft <= 0 || e.state.CurrentQuestion >= len(e.questions) {
		// already finished before the restart; the attempt was counted then
		e.phase = PhaseCompleted
		e.state.IsComplete = true
		e.state.ShowResult = true
	} else {
		e.phase = PhaseInProgress
		e.startTimerLocked()
	}

	e.store.Save(ctx, e.state)
	e.broadcastLocked()
	return e.state.Clone()
}

// SubmitAnswer records answer for the current question. It is ignored unless
// the quiz is in progress with a question left to answer.
func (e *Engine) SubmitAnswer(ctx context.Context, answer string) domain.QuizState {
	e.mu.Lock()
	if e.phase != PhaseInProgress || e.state.CurrentQuestion >= len(e.questions) {
		state := e.state.Clone()
		e.mu.Unlock()
		return state
	}

	question := e.questions[e.state.CurrentQuestion]
	if answer == question.CorrectAnswer {
		e.state.Score++
	}
	e.state.Answers = append(e.state.Answers, answer)
	e.state.CurrentQuestion++

	completed := false
	if e.state.CurrentQuestion >= len(e.questions) {
		completed = e.completeLocked()
	}
	e.store.Save(ctx, e.state)

	state := e.state.Clone()
	result := e.resultLocked()
	e.mu.Unlock()

	if completed {
		e.notifyComplete(result)
	}
	e.broadcast()
	return state
}

// Retry starts a fresh attempt with the same questions and time limit.
// Only a completed engine can be retried.
func (e *Engine) Retry(ctx context.Context) domain.QuizState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase != PhaseCompleted {
		return e.state.Clone()
	}

	e.store.Clear(ctx)
	e.phase = PhaseInitializing
	e.state = domain.NewQuizState(e.timeLimit)
	if len(e.questions) == 0 || e.timeLimit == 0 {
		e.completeFresh()
	} else {
		e.phase = PhaseInProgress
		e.startTimerLocked()
	}

	e.store.Save(ctx, e.state)
	e.broadcastLocked()
	return e.state.Clone()
}

// Close stops the countdown and detaches all subscribers. The engine is
// inert afterwards.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopTimerLocked()
	e.phase = PhaseClosed
	for ch := range e.subscribers {
		delete(e.subscribers, ch)
		close(ch)
	}
}

// State returns a copy of the current state.
func (e *Engine) State() domain.QuizState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// CurrentQuestion returns the question awaiting an answer, if any.
func (e *Engine) CurrentQuestion() (domain.Question, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase != PhaseInProgress || e.state.CurrentQuestion >= len(e.questions) {
		return domain.Question{}, false
	}
	q := e.questions[e.state.CurrentQuestion]
	q.Options = append([]string(nil), q.Options...)
	return q, true
}

func (e *Engine) Questions() []domain.Question {
	return append([]domain.Question(nil), e.questions...)
}

func (e *Engine) TimeLimit() int {
	return e.timeLimit
}

// Result returns the tally of the current attempt.
func (e *Engine) Result() domain.Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resultLocked()
}

// Subscribe returns a channel that receives every state change.
// The caller must invoke the returned cancel function to avoid leaks.
func (e *Engine) Subscribe() (<-chan domain.QuizState, func()) {
	ch := make(chan domain.QuizState, 8)

	e.mu.Lock()
	if e.phase == PhaseClosed {
		e.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	e.subscribers[ch] = struct{}{}
	ch <- e.state.Clone()
	e.mu.Unlock()

	cancel := func() {
		e.mu.Lock()
		if _, ok := e.subscribers[ch]; ok {
			delete(e.subscribers, ch)
			close(ch)
		}
		e.mu.Unlock()
	}
	return ch, cancel
}

// compatible reports whether a snapshot can belong to this question list.
func (e *Engine) compatible(s domain.QuizState) bool {
	return s.CurrentQuestion <= len(e.questions) &&
		len(s.Answers) == s.CurrentQuestion &&
		s.Score <= len(s.Answers) &&
		s.TimeLeft <= e.timeLimit
}

// startTimerLocked replaces any running ticker with a new one, so at most one
// countdown is ever active.
func (e *Engine) startTimerLocked() {
	e.stopTimerLocked()
	ticker := e.newTicker(time.Second)
	stop := make(chan struct{})
	e.ticker = ticker
	e.stop = stop
	go e.run(ticker, stop)
}

func (e *Engine) stopTimerLocked() {
	if e.ticker == nil {
		return
	}
	e.ticker.Stop()
	close(e.stop)
	e.ticker = nil
	e.stop = nil
}

func (e *Engine) run(ticker Ticker, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			if !e.tick(stop) {
				return
			}
		}
	}
}

// tick decrements the countdown. Ticks from a superseded ticker are dropped.
func (e *Engine) tick(stop chan struct{}) bool {
	e.mu.Lock()
	if e.stop != stop || e.phase != PhaseInProgress {
		e.mu.Unlock()
		return false
	}

	e.state.TimeLeft--
	completed := false
	if e.state.TimeLeft <= 0 {
		e.state.TimeLeft = 0
		completed = e.completeLocked()
	}
	e.store.Save(context.Background(), e.state)

	result := e.resultLocked()
	running := e.phase == PhaseInProgress
	e.mu.Unlock()

	if completed {
		e.notifyComplete(result)
	}
	e.broadcast()
	return running
}

// completeLocked moves an in-progress attempt to its terminal state. It
// reports false when the attempt was already complete.
func (e *Engine) completeLocked() bool {
	if e.phase != PhaseInProgress {
		return false
	}
	e.stopTimerLocked()
	e.phase = PhaseCompleted
	e.state.IsComplete = true
	e.state.ShowResult = true
	return true
}

// completeFresh finishes an attempt that cannot start (no questions or no time).
func (e *Engine) completeFresh() {
	e.phase = PhaseCompleted
	e.state.IsComplete = true
	e.state.ShowResult = true
}

func (e *Engine) resultLocked() domain.Result {
	return domain.Result{
		Score:     e.state.Score,
		Total:     len(e.questions),
		Answered:  len(e.state.Answers),
		TimeSpent: e.timeLimit - e.state.TimeLeft,
	}
}

func (e *Engine) notifyComplete(result domain.Result) {
	if e.onComplete != nil {
		e.onComplete(result)
	}
}

// broadcast publishes the current state; subscribers see the completion hook's effects.
func (e *Engine) broadcast() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.broadcastLocked()
}

func (e *Engine) broadcastLocked() {
	state := e.state.Clone()
	for ch := range e.subscribers {
		select {
		case ch <- state:
		default:
			// drop the stale update so a slow reader never blocks the countdown
			select {
			case <-ch:
			default:
			}
			ch <- state
		}
	}
}
