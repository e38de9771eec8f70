package app

import (
	"context"
	"strings"
	"sync"

	"trivia-quiz/internal/domain"
)

// QuestionFetcher loads a fresh batch of questions (trivia.Client in production).
type QuestionFetcher interface {
	Fetch(ctx context.Context, amount int) ([]domain.Question, error)
}

// SessionStore persists quiz progress plus the per-session keys.
type SessionStore interface {
	StateStore
	SaveUsername(ctx context.Context, username string)
	Username(ctx context.Context) (string, bool)
	SaveQuestions(ctx context.Context, questions []domain.Question)
	Questions(ctx context.Context) ([]domain.Question, bool)
	SaveElapsed(ctx context.Context, seconds int)
	Elapsed(ctx context.Context) int
	ClearSession(ctx context.Context)
}

// Options configures a QuizService.
type Options struct {
	Amount        int // questions per quiz
	TimeLimit     int // seconds
	EngineOptions []EngineOption
}

// QuizService is the login/logout glue around an Engine. It owns at most one
// engine at a time.
type QuizService struct {
	fetcher    QuestionFetcher
	store      SessionStore
	amount     int
	timeLimit  int
	engineOpts []EngineOption

	mu       sync.Mutex
	username string
	engine   *Engine
}

func NewQuizService(fetcher QuestionFetcher, store SessionStore, opts Options) *QuizService {
	if opts.Amount <= 0 {
		opts.Amount = 10
	}
	if opts.TimeLimit <= 0 {
		opts.TimeLimit = 300
	}
	return &QuizService{
		fetcher:    fetcher,
		store:      store,
		amount:     opts.Amount,
		timeLimit:  opts.TimeLimit,
		engineOpts: opts.EngineOptions,
	}
}

// Login starts a fresh session for username. An empty name is rejected with a
// *domain.ValidationError before anything is stored; a failed fetch returns
// the *domain.FetchError and leaves the user logged out.
func (s *QuizService) Login(ctx context.Context, username string) (*Engine, error) {
	name := strings.TrimSpace(username)
	if name == "" {
		return nil, &domain.ValidationError{Field: "username", Reason: "cannot be empty"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeEngineLocked()

	s.store.ClearSession(ctx)
	s.store.SaveUsername(ctx, name)
	questions, err := s.fetch(ctx)
	if err != nil {
		s.store.ClearSession(ctx)
		s.username = ""
		return nil, err
	}
	s.store.SaveQuestions(ctx, questions)
	s.username = name
	s.engine = s.startEngineLocked(ctx, questions)
	return s.engine, nil
}

// Resume continues the session of a previously logged in user, restoring the
// saved snapshot. It returns domain.ErrNotLoggedIn when no user is stored.
func (s *QuizService) Resume(ctx context.Context) (*Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name, ok := s.store.Username(ctx)
	if !ok {
		return nil, domain.ErrNotLoggedIn
	}
	s.username = name
	if s.engine != nil {
		return s.engine, nil
	}

	questions, ok := s.store.Questions(ctx)
	if !ok {
		var err error
		if questions, err = s.fetch(ctx); err != nil {
			return nil, err
		}
		// the snapshot cannot belong to a new batch
		s.store.Clear(ctx)
		s.store.SaveQuestions(ctx, questions)
	}
	s.engine = s.startEngineLocked(ctx, questions)
	return s.engine, nil
}

// SubmitAnswer forwards answer to the running engine.
func (s *QuizService) SubmitAnswer(ctx context.Context, answer string) (domain.QuizState, error) {
	engine := s.Engine()
	if engine == nil {
		return domain.QuizState{}, domain.ErrNotLoggedIn
	}
	return engine.SubmitAnswer(ctx, answer), nil
}

// Retry restarts a completed quiz with the same questions.
func (s *QuizService) Retry(ctx context.Context) (domain.QuizState, error) {
	engine := s.Engine()
	if engine == nil {
		return domain.QuizState{}, domain.ErrNotLoggedIn
	}
	return engine.Retry(ctx), nil
}

// Logout stops the countdown and removes every persisted key.
func (s *QuizService) Logout(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeEngineLocked()
	s.store.ClearSession(ctx)
	s.username = ""
}

func (s *QuizService) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// Engine returns the current engine, or nil when logged out.
func (s *QuizService) Engine() *Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine
}

// Elapsed returns the seconds spent on completed attempts this session.
func (s *QuizService) Elapsed(ctx context.Context) int {
	return s.store.Elapsed(ctx)
}

func (s *QuizService) fetch(ctx context.Context) ([]domain.Question, error) {
	questions, err := s.fetcher.Fetch(ctx, s.amount)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, &domain.FetchError{Message: domain.FetchMessage, Attempts: 1, Err: domain.ErrNoQuestions}
	}
	return questions, nil
}

func (s *QuizService) startEngineLocked(ctx context.Context, questions []domain.Question) *Engine {
	var engine *Engine
	opts := append([]EngineOption{}, s.engineOpts...)
	opts = append(opts, WithCompletionHook(func(r domain.Result) {
		s.recordCompletion(engine, r)
	}))
	engine = NewEngine(questions, s.timeLimit, s.store, opts...)
	engine.Start(ctx)
	return engine
}

func (s *QuizService) recordCompletion(engine *Engine, r domain.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine != engine {
		return
	}
	ctx := context.Background()
	s.store.SaveElapsed(ctx, s.store.Elapsed(ctx)+r.TimeSpent)
}

func (s *QuizService) closeEngineLocked() {
	if s.engine != nil {
		s.engine.Close()
		s.engine = nil
	}
}
