package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"trivia-quiz/internal/app"
	"trivia-quiz/internal/domain"
)

type exitAction int

const (
	actionQuit exitAction = iota
	actionLogout
)

// shell is the terminal presentation of a QuizService. It renders engine
// state and forwards user input; it never touches QuizState directly.
type shell struct {
	service *app.QuizService
	lines   <-chan string
	out     io.Writer
}

func newShell(service *app.QuizService, lines <-chan string, out io.Writer) *shell {
	return &shell{service: service, lines: lines, out: out}
}

func (sh *shell) run(ctx context.Context, username string) error {
	defer func() {
		// progress stays saved; the next run resumes it
		if engine := sh.service.Engine(); engine != nil {
			engine.Close()
		}
	}()

	for {
		engine, ok := sh.login(ctx, username)
		if !ok {
			return nil
		}
		username = ""

		if sh.play(ctx, engine) == actionQuit {
			return nil
		}
	}
}

// login resumes a saved session or asks for a username. It reports false
// when the user quit or input ended.
func (sh *shell) login(ctx context.Context, preset string) (*app.Engine, bool) {
	for {
		engine, err := sh.service.Resume(ctx)
		if err == nil {
			fmt.Fprintf(sh.out, "Welcome back, %s!\n", sh.service.Username())
			return engine, true
		}
		if !errors.Is(err, domain.ErrNotLoggedIn) {
			if !sh.offerRetry(ctx, err) {
				return nil, false
			}
			continue
		}

		name := preset
		preset = ""
		if name == "" {
			fmt.Fprint(sh.out, "Username: ")
			line, ok := sh.readLine(ctx)
			if !ok {
				return nil, false
			}
			name = line
		}

		engine, err = sh.service.Login(ctx, name)
		var validation *domain.ValidationError
		switch {
		case err == nil:
			fmt.Fprintf(sh.out, "Welcome, %s!\n", sh.service.Username())
			return engine, true
		case errors.As(err, &validation):
			fmt.Fprintf(sh.out, "Invalid input: %s.\n", validation.Error())
		default:
			if !sh.offerRetry(ctx, err) {
				return nil, false
			}
			preset = name
		}
	}
}

func (sh *shell) offerRetry(ctx context.Context, err error) bool {
	var fetchErr *domain.FetchError
	if errors.As(err, &fetchErr) {
		fmt.Fprintln(sh.out, fetchErr.Message)
	} else {
		fmt.Fprintf(sh.out, "Failed to load questions: %v\n", err)
	}
	fmt.Fprint(sh.out, "Press enter to try again or q to quit: ")
	line, ok := sh.readLine(ctx)
	return ok && !strings.EqualFold(strings.TrimSpace(line), "q")
}

// play runs one session until the user logs out or quits.
func (sh *shell) play(ctx context.Context, engine *app.Engine) exitAction {
	updates, cancel := engine.Subscribe()
	defer cancel()

	shown := -1
	resultsShown := false
	render := func() {
		state := engine.State()
		if state.IsComplete {
			if !resultsShown {
				sh.printResults(ctx, engine)
				resultsShown = true
			}
			return
		}
		resultsShown = false
		if state.CurrentQuestion != shown {
			sh.printQuestion(engine, state)
			shown = state.CurrentQuestion
		}
	}
	render()

	for {
		select {
		case <-ctx.Done():
			return actionQuit
		case _, ok := <-updates:
			if !ok {
				return actionQuit
			}
			render()
		case line, ok := <-sh.lines:
			if !ok {
				return actionQuit
			}
			if engine.State().IsComplete {
				switch strings.ToLower(strings.TrimSpace(line)) {
				case "r":
					if _, err := sh.service.Retry(ctx); err != nil {
						return actionQuit
					}
					shown = -1
					render()
				case "l":
					sh.service.Logout(ctx)
					fmt.Fprintln(sh.out, "Logged out.")
					return actionLogout
				case "q":
					return actionQuit
				default:
					fmt.Fprintln(sh.out, "Choose r, l or q.")
				}
				continue
			}

			question, ok := engine.CurrentQuestion()
			if !ok {
				continue
			}
			answer, ok := resolveAnswer(question, line)
			if !ok {
				fmt.Fprintf(sh.out, "Pick an option between 1 and %d.\n", len(question.Options))
				continue
			}
			if _, err := sh.service.SubmitAnswer(ctx, answer); err != nil {
				return actionQuit
			}
			render()
		}
	}
}

func (sh *shell) printQuestion(engine *app.Engine, state domain.QuizState) {
	question, ok := engine.CurrentQuestion()
	if !ok {
		return
	}
	fmt.Fprintf(sh.out, "\nQuestion %d / %d    Time left: %s\n", state.CurrentQuestion+1, len(engine.Questions()), formatClock(state.TimeLeft))
	fmt.Fprintln(sh.out, question.Text)
	for i, opt := range question.Options {
		fmt.Fprintf(sh.out, "  %d) %s\n", i+1, opt)
	}
	fmt.Fprint(sh.out, "> ")
}

func (sh *shell) printResults(ctx context.Context, engine *app.Engine) {
	result := engine.Result()
	fmt.Fprintln(sh.out, "\nQuiz complete!")
	fmt.Fprintf(sh.out, "Score: %d out of %d\n", result.Score, result.Total)
	fmt.Fprintf(sh.out, "Answered: %d\n", result.Answered)
	fmt.Fprintf(sh.out, "Time spent: %ds\n", result.TimeSpent)
	fmt.Fprintf(sh.out, "Total time this session: %ds\n", sh.service.Elapsed(ctx))
	fmt.Fprint(sh.out, "[r] try again  [l] logout  [q] quit: ")
}

func (sh *shell) readLine(ctx context.Context) (string, bool) {
	select {
	case <-ctx.Done():
		return "", false
	case line, ok := <-sh.lines:
		return line, ok
	}
}

// resolveAnswer maps an option number or the exact option text to the option.
func resolveAnswer(q domain.Question, input string) (string, bool) {
	input = strings.TrimSpace(input)
	for _, opt := range q.Options {
		if opt == input {
			return opt, true
		}
	}
	if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= len(q.Options) {
		return q.Options[n-1], true
	}
	return "", false
}

func formatClock(seconds int) string {
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
