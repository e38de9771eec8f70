package domain

// Question is a single multiple-choice trivia prompt.
// Options contains CorrectAnswer exactly once; the order is fixed at fetch time.
type Question struct {
	ID            int64    `json:"id"`
	Text          string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
}

// QuizState is the mutable progress record for one quiz attempt.
type QuizState struct {
	CurrentQuestion int      `json:"currentQuestion"`
	Score           int      `json:"score"`
	TimeLeft        int      `json:"timeLeft"`
	Answers         []string `json:"answers"`
	IsComplete      bool     `json:"isComplete"`
	ShowResult      bool     `json:"showResult"`
}

// NewQuizState returns the state of an attempt that has not started yet.
func NewQuizState(timeLimit int) QuizState {
	return QuizState{
		TimeLeft: timeLimit,
		Answers:  []string{},
	}
}

// Clone returns a copy that shares no memory with s.
func (s QuizState) Clone() QuizState {
	out := s
	out.Answers = append([]string{}, s.Answers...)
	return out
}

// Result is the final tally of an attempt.
type Result struct {
	Score     int `json:"score"`
	Total     int `json:"total"`
	Answered  int `json:"answered"`
	TimeSpent int `json:"timeSpent"` // seconds
}
