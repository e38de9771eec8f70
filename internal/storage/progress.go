package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"

	"trivia-quiz/internal/domain"
)

// Fixed keys of the local store. Logout removes all of them.
const (
	KeyQuizState = "quizState"
	KeyUser      = "user"
	KeyTimeSpent = "timeSpent"
	KeyQuestions = "quizQuestions"
)

// KV is the local key-value store progress is mirrored to (file, memory, Redis, Postgres).
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Progress serializes quiz progress and session keys to a KV.
// It holds no state of its own, and every failure degrades to "nothing saved".
type Progress struct {
	kv     KV
	prefix string
}

func NewProgress(kv KV, prefix string) *Progress {
	return &Progress{kv: kv, prefix: prefix}
}

func (p *Progress) key(name string) string {
	return p.prefix + name
}

// Save writes a snapshot of state. Failures are logged only.
func (p *Progress) Save(ctx context.Context, state domain.QuizState) {
	data, err := json.Marshal(state)
	if err != nil {
		p.warn("encode", KeyQuizState, err)
		return
	}
	p.set(ctx, KeyQuizState, string(data))
}

// Load returns the saved snapshot if it is present and well formed.
func (p *Progress) Load(ctx context.Context) (domain.QuizState, bool) {
	raw, ok := p.get(ctx, KeyQuizState)
	if !ok {
		return domain.QuizState{}, false
	}
	state, err := decodeQuizState([]byte(raw))
	if err != nil {
		p.warn("decode", KeyQuizState, err)
		return domain.QuizState{}, false
	}
	return state, true
}

// Clear removes the snapshot.
func (p *Progress) Clear(ctx context.Context) {
	p.delete(ctx, KeyQuizState)
}

// Exists reports whether a snapshot is stored, valid or not.
func (p *Progress) Exists(ctx context.Context) bool {
	ok, err := p.kv.Exists(ctx, p.key(KeyQuizState))
	if err != nil {
		p.warn("exists", KeyQuizState, err)
		return false
	}
	return ok
}

func (p *Progress) SaveUsername(ctx context.Context, username string) {
	p.set(ctx, KeyUser, username)
}

func (p *Progress) Username(ctx context.Context) (string, bool) {
	name, ok := p.get(ctx, KeyUser)
	if !ok || name == "" {
		return "", false
	}
	return name, true
}

func (p *Progress) SaveElapsed(ctx context.Context, seconds int) {
	p.set(ctx, KeyTimeSpent, strconv.Itoa(seconds))
}

// Elapsed returns the cumulative seconds spent in this session, 0 if unknown.
func (p *Progress) Elapsed(ctx context.Context) int {
	raw, ok := p.get(ctx, KeyTimeSpent)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		p.warn("decode", KeyTimeSpent, fmt.Errorf("invalid value %q", raw))
		return 0
	}
	return n
}

func (p *Progress) SaveQuestions(ctx context.Context, questions []domain.Question) {
	data, err := json.Marshal(questions)
	if err != nil {
		p.warn("encode", KeyQuestions, err)
		return
	}
	p.set(ctx, KeyQuestions, string(data))
}

// Questions returns the persisted batch if every question is usable.
func (p *Progress) Questions(ctx context.Context) ([]domain.Question, bool) {
	raw, ok := p.get(ctx, KeyQuestions)
	if !ok {
		return nil, false
	}
	var questions []domain.Question
	if err := json.Unmarshal([]byte(raw), &questions); err != nil {
		p.warn("decode", KeyQuestions, err)
		return nil, false
	}
	if len(questions) == 0 {
		return nil, false
	}
	for _, q := range questions {
		if !containsOnce(q.Options, q.CorrectAnswer) {
			p.warn("decode", KeyQuestions, fmt.Errorf("question %d has no unique correct option", q.ID))
			return nil, false
		}
	}
	return questions, true
}

// ClearSession removes the snapshot and every session key.
func (p *Progress) ClearSession(ctx context.Context) {
	p.delete(ctx, KeyQuizState, KeyUser, KeyTimeSpent, KeyQuestions)
}

func (p *Progress) get(ctx context.Context, name string) (string, bool) {
	raw, ok, err := p.kv.Get(ctx, p.key(name))
	if err != nil {
		p.warn("get", name, err)
		return "", false
	}
	return raw, ok
}

func (p *Progress) set(ctx context.Context, name, value string) {
	if err := p.kv.Set(ctx, p.key(name), value); err != nil {
		p.warn("set", name, err)
	}
}

func (p *Progress) delete(ctx context.Context, names ...string) {
	keys := make([]string, len(names))
	for i, name := range names {
		keys[i] = p.key(name)
	}
	if err := p.kv.Delete(ctx, keys...); err != nil {
		p.warn("delete", names[0], err)
	}
}

func (p *Progress) warn(op, name string, err error) {
	log.Printf("storage: %v", &domain.PersistenceError{Op: op, Key: p.key(name), Err: err})
}

var requiredFields = []string{"currentQuestion", "score", "timeLeft", "answers", "isComplete", "showResult"}

var errInvalidSnapshot = errors.New("invalid snapshot")

// decodeQuizState decodes a snapshot field by field and fails closed on
// any missing, mistyped or out-of-range value.
func decodeQuizState(data []byte) (domain.QuizState, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return domain.QuizState{}, err
	}
	for _, name := range requiredFields {
		raw, ok := fields[name]
		if !ok {
			return domain.QuizState{}, fmt.Errorf("%w: missing %s", errInvalidSnapshot, name)
		}
		if name != "answers" && bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return domain.QuizState{}, fmt.Errorf("%w: null %s", errInvalidSnapshot, name)
		}
	}

	var state domain.QuizState
	targets := map[string]any{
		"currentQuestion": &state.CurrentQuestion,
		"score":           &state.Score,
		"timeLeft":        &state.TimeLeft,
		"answers":         &state.Answers,
		"isComplete":      &state.IsComplete,
		"showResult":      &state.ShowResult,
	}
	for name, target := range targets {
		if err := json.Unmarshal(fields[name], target); err != nil {
			return domain.QuizState{}, fmt.Errorf("%w: %s: %v", errInvalidSnapshot, name, err)
		}
	}
	if state.CurrentQuestion < 0 || state.Score < 0 || state.TimeLeft < 0 {
		return domain.QuizState{}, fmt.Errorf("%w: negative counter", errInvalidSnapshot)
	}
	if state.Answers == nil {
		state.Answers = []string{}
	}
	return state, nil
}

func containsOnce(options []string, answer string) bool {
	n := 0
	for _, opt := range options {
		if opt == answer {
			n++
		}
	}
	return n == 1
}
