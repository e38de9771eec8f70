package app_test

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"trivia-quiz/internal/app"
	"trivia-quiz/internal/domain"
	"trivia-quiz/internal/infra/memory"
	"trivia-quiz/internal/storage"
)

func TestScoreCountsExactMatchesOnly(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{}
	engine := app.NewEngine(sampleQuestions(10), 300, newProgress(), app.WithTicker(clock.NewTicker))
	engine.Start(ctx)

	engine.SubmitAnswer(ctx, "answer-0")
	for i := 1; i < 10; i++ {
		// right text, wrong case
		engine.SubmitAnswer(ctx, fmt.Sprintf("ANSWER-%d", i))
	}

	state := engine.State()
	if state.Score != 1 {
		t.Fatalf("expected score 1, got %d", state.Score)
	}
	if len(state.Answers) != 10 || state.CurrentQuestion != 10 {
		t.Fatalf("expected 10 answers at index 10, got %d at %d", len(state.Answers), state.CurrentQuestion)
	}
	if !state.IsComplete || !state.ShowResult {
		t.Fatalf("expected completed state, got %+v", state)
	}
	if state.TimeLeft != 300 {
		t.Fatalf("expected completion before any tick, time left %d", state.TimeLeft)
	}
	if engine.Phase() != app.PhaseCompleted {
		t.Fatalf("expected completed phase, got %s", engine.Phase())
	}
	if clock.active() != 0 {
		t.Fatalf("expected timer stopped, %d active", clock.active())
	}

	// late duplicate answer is ignored
	after := engine.SubmitAnswer(ctx, "answer-9")
	if len(after.Answers) != 10 || after.Score != 1 {
		t.Fatalf("expected answer after completion to be ignored, got %+v", after)
	}
}

func TestTimerExpiryCompletesWithUnansweredQuestions(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{}
	engine := app.NewEngine(sampleQuestions(10), 10, newProgress(), app.WithTicker(clock.NewTicker))
	engine.Start(ctx)
	updates, cancel := engine.Subscribe()
	defer cancel()

	for i := 0; i < 10; i++ {
		state := tickAndWait(t, clock, updates)
		if state.TimeLeft != 9-i {
			t.Fatalf("tick %d: expected %d seconds left, got %d", i+1, 9-i, state.TimeLeft)
		}
	}

	state := engine.State()
	if !state.IsComplete || !state.ShowResult {
		t.Fatalf("expected completion at zero, got %+v", state)
	}
	if state.Score != 0 || len(state.Answers) != 0 {
		t.Fatalf("expected nothing answered, got %+v", state)
	}
	if clock.active() != 0 {
		t.Fatalf("expected timer stopped after expiry, %d active", clock.active())
	}
	if got := engine.Result(); got.TimeSpent != 10 || got.Answered != 0 || got.Total != 10 {
		t.Fatalf("unexpected result %+v", got)
	}

	after := engine.SubmitAnswer(ctx, "answer-0")
	if len(after.Answers) != 0 {
		t.Fatalf("expected answer after expiry to be ignored, got %+v", after)
	}
}

func TestRetryResetsStateAndRunsOneTimer(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{}
	engine := app.NewEngine(sampleQuestions(2), 60, newProgress(), app.WithTicker(clock.NewTicker))
	engine.Start(ctx)
	updates, cancel := engine.Subscribe()
	defer cancel()

	tickAndWait(t, clock, updates)
	engine.SubmitAnswer(ctx, "answer-0")
	engine.SubmitAnswer(ctx, "answer-1")
	if engine.Phase() != app.PhaseCompleted {
		t.Fatalf("expected completion, got %s", engine.Phase())
	}

	state := engine.Retry(ctx)
	want := domain.NewQuizState(60)
	if !reflect.DeepEqual(state, want) {
		t.Fatalf("expected fresh state %+v, got %+v", want, state)
	}
	if engine.Phase() != app.PhaseInProgress {
		t.Fatalf("expected in progress after retry, got %s", engine.Phase())
	}
	if clock.started() != 2 || clock.active() != 1 {
		t.Fatalf("expected exactly one running timer, started=%d active=%d", clock.started(), clock.active())
	}

	state = tickAndWait(t, clock, updates)
	if state.TimeLeft != 59 {
		t.Fatalf("expected a single decrement per tick, got %d left", state.TimeLeft)
	}
}

func TestRetryIgnoredWhileInProgress(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{}
	engine := app.NewEngine(sampleQuestions(3), 60, newProgress(), app.WithTicker(clock.NewTicker))
	engine.Start(ctx)
	engine.SubmitAnswer(ctx, "answer-0")

	state := engine.Retry(ctx)
	if state.CurrentQuestion != 1 || state.Score != 1 {
		t.Fatalf("expected retry to be ignored mid-quiz, got %+v", state)
	}
	if clock.started() != 1 {
		t.Fatalf("expected no extra timer, started=%d", clock.started())
	}
}

func TestStartIsIdempotent(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{}
	engine := app.NewEngine(sampleQuestions(3), 60, newProgress(), app.WithTicker(clock.NewTicker))
	engine.Start(ctx)
	engine.Start(ctx)

	if clock.started() != 1 || clock.active() != 1 {
		t.Fatalf("expected a single timer, started=%d active=%d", clock.started(), clock.active())
	}
}

func TestStartRestoresSavedProgress(t *testing.T) {
	ctx := context.Background()
	progress := newProgress()
	saved := domain.QuizState{
		CurrentQuestion: 2,
		Score:           1,
		TimeLeft:        100,
		Answers:         []string{"answer-0", "nope"},
	}
	progress.Save(ctx, saved)

	clock := &fakeClock{}
	engine := app.NewEngine(sampleQuestions(4), 300, progress, app.WithTicker(clock.NewTicker))
	state := engine.Start(ctx)
	if !reflect.DeepEqual(state, saved) {
		t.Fatalf("expected restored %+v, got %+v", saved, state)
	}

	q, ok := engine.CurrentQuestion()
	if !ok || q.CorrectAnswer != "answer-2" {
		t.Fatalf("expected to resume at question 3, got %+v ok=%v", q, ok)
	}
	state = engine.SubmitAnswer(ctx, "answer-2")
	if state.Score != 2 || state.CurrentQuestion != 3 {
		t.Fatalf("expected progress to continue, got %+v", state)
	}
}

func TestStartDiscardsIncompatibleSnapshot(t *testing.T) {
	ctx := context.Background()
	progress := newProgress()
	progress.Save(ctx, domain.QuizState{
		CurrentQuestion: 7,
		Score:           3,
		TimeLeft:        100,
		Answers:         []string{"a", "b", "c", "d", "e", "f", "g"},
	})

	engine := app.NewEngine(sampleQuestions(3), 300, progress, app.WithTicker((&fakeClock{}).NewTicker))
	state := engine.Start(ctx)
	if !reflect.DeepEqual(state, domain.NewQuizState(300)) {
		t.Fatalf("expected fresh state, got %+v", state)
	}
}

func TestStartRestoresFinishedAttemptAsCompleted(t *testing.T) {
	ctx := context.Background()
	progress := newProgress()
	progress.Save(ctx, domain.QuizState{
		CurrentQuestion: 1,
		Score:           1,
		TimeLeft:        0,
		Answers:         []string{"answer-0"},
	})

	clock := &fakeClock{}
	engine := app.NewEngine(sampleQuestions(3), 300, progress, app.WithTicker(clock.NewTicker))
	state := engine.Start(ctx)
	if !state.IsComplete || !state.ShowResult {
		t.Fatalf("expected completed state, got %+v", state)
	}
	if clock.started() != 0 {
		t.Fatalf("expected no timer for a finished attempt, started=%d", clock.started())
	}
}

func TestEveryMutationIsPersisted(t *testing.T) {
	ctx := context.Background()
	progress := newProgress()
	clock := &fakeClock{}
	engine := app.NewEngine(sampleQuestions(3), 30, progress, app.WithTicker(clock.NewTicker))
	engine.Start(ctx)
	updates, cancel := engine.Subscribe()
	defer cancel()

	tickAndWait(t, clock, updates)
	assertPersisted(t, progress, engine)

	engine.SubmitAnswer(ctx, "answer-0")
	assertPersisted(t, progress, engine)
}

func TestCloseStopsTimer(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{}
	engine := app.NewEngine(sampleQuestions(3), 30, newProgress(), app.WithTicker(clock.NewTicker))
	engine.Start(ctx)
	updates, cancel := engine.Subscribe()
	defer cancel()
	tickAndWait(t, clock, updates)
	before := engine.State()

	engine.Close()
	if clock.active() != 0 {
		t.Fatalf("expected timer stopped, %d active", clock.active())
	}

	select {
	case clock.last().ch <- time.Now():
	case <-time.After(20 * time.Millisecond):
	}
	engine.SubmitAnswer(ctx, "answer-1")

	if after := engine.State(); !reflect.DeepEqual(before, after) {
		t.Fatalf("expected no change after close, before %+v after %+v", before, after)
	}
	if engine.Phase() != app.PhaseClosed {
		t.Fatalf("expected closed phase, got %s", engine.Phase())
	}
}

func TestCompletionHookRunsOncePerAttempt(t *testing.T) {
	ctx := context.Background()
	var results []domain.Result
	engine := app.NewEngine(sampleQuestions(1), 30, newProgress(),
		app.WithTicker((&fakeClock{}).NewTicker),
		app.WithCompletionHook(func(r domain.Result) { results = append(results, r) }),
	)
	engine.Start(ctx)
	engine.SubmitAnswer(ctx, "answer-0")
	engine.SubmitAnswer(ctx, "answer-0")

	if len(results) != 1 {
		t.Fatalf("expected one completion, got %d", len(results))
	}
	if results[0] != (domain.Result{Score: 1, Total: 1, Answered: 1, TimeSpent: 0}) {
		t.Fatalf("unexpected result %+v", results[0])
	}
}

func assertPersisted(t *testing.T, progress *storage.Progress, engine *app.Engine) {
	t.Helper()
	saved, ok := progress.Load(context.Background())
	if !ok {
		t.Fatalf("expected snapshot")
	}
	if state := engine.State(); !reflect.DeepEqual(saved, state) {
		t.Fatalf("snapshot %+v does not match state %+v", saved, state)
	}
}

// tickAndWait fires the newest ticker and returns the state it produced.
func tickAndWait(t *testing.T, clock *fakeClock, updates <-chan domain.QuizState) domain.QuizState {
	t.Helper()
drain:
	for {
		select {
		case <-updates:
		default:
			break drain
		}
	}
	select {
	case clock.last().ch <- time.Now():
	case <-time.After(time.Second):
		t.Fatalf("ticker not being read")
	}
	select {
	case state := <-updates:
		return state
	case <-time.After(time.Second):
		t.Fatalf("no update after tick")
	}
	return domain.QuizState{}
}

type fakeClock struct {
	mu      sync.Mutex
	tickers []*fakeTicker
}

func (c *fakeClock) NewTicker(time.Duration) app.Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	ft := &fakeTicker{ch: make(chan time.Time)}
	c.tickers = append(c.tickers, ft)
	return ft
}

func (c *fakeClock) started() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tickers)
}

func (c *fakeClock) active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ft := range c.tickers {
		if !ft.isStopped() {
			n++
		}
	}
	return n
}

func (c *fakeClock) last() *fakeTicker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tickers[len(c.tickers)-1]
}

type fakeTicker struct {
	ch      chan time.Time
	mu      sync.Mutex
	stopped bool
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }

func (f *fakeTicker) Stop() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

func (f *fakeTicker) isStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func sampleQuestions(n int) []domain.Question {
	questions := make([]domain.Question, n)
	for i := range questions {
		correct := fmt.Sprintf("answer-%d", i)
		questions[i] = domain.Question{
			ID:            int64(i + 1),
			Text:          fmt.Sprintf("Question %d?", i+1),
			Options:       []string{"nope", correct, "never"},
			CorrectAnswer: correct,
		}
	}
	return questions
}

func newProgress() *storage.Progress {
	return storage.NewProgress(memory.NewStore(), "")
}
