package trivia

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"trivia-quiz/internal/domain"
)

const (
	// DefaultURL is the Open Trivia DB question endpoint.
	DefaultURL      = "https://opentdb.com/api.php"
	DefaultAttempts = 3
	DefaultDelay    = 2 * time.Second

	// responseRateLimit is the provider's "too many requests" response_code.
	responseRateLimit = 5
)

type apiResponse struct {
	ResponseCode int         `json:"response_code"`
	Results      []apiResult `json:"results"`
}

type apiResult struct {
	Category         string   `json:"category"`
	Type             string   `json:"type"`
	Difficulty       string   `json:"difficulty"`
	Question         string   `json:"question"`
	CorrectAnswer    string   `json:"correct_answer"`
	IncorrectAnswers []string `json:"incorrect_answers"`
}

// Options tunes the retry policy and transport of a Client.
type Options struct {
	URL        string
	Attempts   int
	Delay      time.Duration
	HTTPClient *http.Client
	Rand       *rand.Rand
}

// Client fetches multiple-choice questions from the trivia provider.
type Client struct {
	url      string
	attempts int
	delay    time.Duration
	http     *http.Client
	sf       singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewClient(opts Options) *Client {
	c := &Client{
		url:      opts.URL,
		attempts: opts.Attempts,
		delay:    opts.Delay,
		http:     opts.HTTPClient,
		rnd:      opts.Rand,
	}
	if c.url == "" {
		c.url = DefaultURL
	}
	if c.attempts <= 0 {
		c.attempts = DefaultAttempts
	}
	if c.delay < 0 {
		c.delay = 0
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 10 * time.Second}
	}
	if c.rnd == nil {
		c.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return c
}

// Fetch returns amount questions or a *domain.FetchError once every attempt failed.
// Concurrent calls for the same amount share one upstream request.
func (c *Client) Fetch(ctx context.Context, amount int) ([]domain.Question, error) {
	result, err, _ := c.sf.Do(strconv.Itoa(amount), func() (interface{}, error) {
		return c.fetchWithRetry(ctx, amount)
	})
	if err != nil {
		return nil, err
	}
	// every caller gets its own copy of the shared batch
	shared := result.([]domain.Question)
	out := make([]domain.Question, len(shared))
	for i, q := range shared {
		q.Options = append([]string(nil), q.Options...)
		out[i] = q
	}
	return out, nil
}

func (c *Client) fetchWithRetry(ctx context.Context, amount int) ([]domain.Question, error) {
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		raw, err := c.fetchOnce(ctx, amount)
		if err == nil {
			return c.normalize(raw), nil
		}
		lastErr = err
		if errors.Is(err, domain.ErrRateLimited) {
			log.Printf("trivia: rate limited, attempt %d/%d", attempt, c.attempts)
		} else {
			log.Printf("trivia: fetch attempt %d/%d failed: %v", attempt, c.attempts, err)
		}
		if attempt == c.attempts {
			break
		}
		if err := sleep(ctx, c.delay); err != nil {
			lastErr = err
			return nil, &domain.FetchError{Message: domain.FetchMessage, Attempts: attempt, Err: lastErr}
		}
	}
	return nil, &domain.FetchError{Message: domain.FetchMessage, Attempts: c.attempts, Err: lastErr}
}

func (c *Client) fetchOnce(ctx context.Context, amount int) ([]apiResult, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	q.Set("amount", strconv.Itoa(amount))
	q.Set("type", "multiple")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, domain.ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	switch {
	case body.ResponseCode == responseRateLimit:
		return nil, domain.ErrRateLimited
	case body.ResponseCode != 0:
		return nil, fmt.Errorf("provider response code %d", body.ResponseCode)
	case len(body.Results) == 0:
		return nil, domain.ErrNoQuestions
	}
	return body.Results, nil
}

func (c *Client) normalize(raw []apiResult) []domain.Question {
	c.mu.Lock()
	defer c.mu.Unlock()

	questions := make([]domain.Question, 0, len(raw))
	for _, r := range raw {
		options := make([]string, 0, len(r.IncorrectAnswers)+1)
		for _, a := range r.IncorrectAnswers {
			options = append(options, html.UnescapeString(a))
		}
		correct := html.UnescapeString(r.CorrectAnswer)
		options = append(options, correct)
		c.rnd.Shuffle(len(options), func(i, j int) {
			options[i], options[j] = options[j], options[i]
		})

		questions = append(questions, domain.Question{
			ID:            c.rnd.Int63(),
			Text:          html.UnescapeString(r.Question),
			Options:       options,
			CorrectAnswer: correct,
		})
	}
	return questions
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
