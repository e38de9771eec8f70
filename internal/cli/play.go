package cli

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"trivia-quiz/internal/app"
	"trivia-quiz/internal/config"
	"trivia-quiz/internal/storage"
	"trivia-quiz/internal/trivia"
)

// NewPlayCmd builds the interactive quiz command.
func NewPlayCmd(configPath, backend *string) *cobra.Command {
	var (
		username  string
		amount    int
		timeLimit string
	)
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Log in and play a timed quiz",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath, *backend)
			if err != nil {
				return err
			}
			if amount > 0 {
				cfg.Trivia.Amount = amount
			}
			if timeLimit != "" {
				cfg.Quiz.TimeLimit = timeLimit
			}
			return runPlay(cmd.Context(), cfg, username, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&username, "user", "", "log in as this user without prompting")
	cmd.Flags().IntVar(&amount, "amount", 0, "number of questions per quiz")
	cmd.Flags().StringVar(&timeLimit, "time-limit", "", "time allowed per quiz, e.g. 5m")
	return cmd
}

func runPlay(ctx context.Context, cfg config.Config, username string, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	kv, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	client := trivia.NewClient(trivia.Options{
		URL:        cfg.Trivia.URL,
		Attempts:   cfg.Trivia.Attempts,
		Delay:      config.Duration(cfg.Trivia.RetryDelay, trivia.DefaultDelay),
		HTTPClient: &http.Client{Timeout: config.Duration(cfg.Trivia.Timeout, 10*time.Second)},
	})
	service := app.NewQuizService(client, storage.NewProgress(kv, cfg.Storage.Prefix), app.Options{
		Amount:    cfg.Trivia.Amount,
		TimeLimit: config.Seconds(cfg.Quiz.TimeLimit, 5*time.Minute),
	})

	sh := newShell(service, readLines(in), out)
	return sh.run(ctx, username)
}

// readLines delivers input lines until EOF, then closes the channel.
func readLines(in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}
