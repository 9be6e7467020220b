package leaderboard

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	// TopSize is the number of places that earn the top reward and are retained.
	TopSize = 10

	FlatReward = 15
	TopReward  = 985

	// MaxMilliseconds is the largest run time the records table can hold.
	MaxMilliseconds = math.MaxInt32
)

type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
)

// Difficulties lists every difficulty in display order.
var Difficulties = []Difficulty{Easy, Medium, Hard}

// ParseDifficulty maps the wire representation (case-insensitive) to a Difficulty.
func ParseDifficulty(s string) (Difficulty, error) {
	switch d := Difficulty(strings.ToLower(strings.TrimSpace(s))); d {
	case Easy, Medium, Hard:
		return d, nil
	default:
		return "", fmt.Errorf("unknown difficulty %q", s)
	}
}

func (d Difficulty) String() string { return string(d) }

func (d Difficulty) Valid() bool {
	_, err := ParseDifficulty(string(d))
	return err == nil
}

type Record struct {
	ID           int64      `json:"id"`
	UserID       string     `json:"user_id"`
	Username     string     `json:"username"`
	Difficulty   Difficulty `json:"difficulty"`
	Milliseconds int        `json:"milliseconds"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Less orders records by time, then by earliest creation, then by id.
func Less(a, b *Record) bool {
	if a.Milliseconds != b.Milliseconds {
		return a.Milliseconds < b.Milliseconds
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

type Outcome string

const (
	AdmittedTopTen    Outcome = "admitted_top_ten"
	ImprovedNotTopTen Outcome = "improved_not_top_ten"
	NotImproved       Outcome = "not_improved"
	NewNotTopTen      Outcome = "new_not_top_ten"
)

// Message is the user-facing text for an outcome.
func (o Outcome) Message() string {
	switch o {
	case AdmittedTopTen:
		return "New record submitted and is in the top 10!"
	case ImprovedNotTopTen:
		return "Personal best improved, but it is not in the top 10."
	case NewNotTopTen:
		return "New record submitted, but it is not in the top 10."
	default:
		return "Record is not better than your personal best."
	}
}

type SubmitRequest struct {
	Milliseconds int    `json:"milliseconds"`
	Difficulty   string `json:"difficulty"`
}

type SubmitResult struct {
	Outcome      Outcome `json:"outcome"`
	Message      string  `json:"message"`
	Record       *Record `json:"record,omitempty"`
	CoinsAwarded int     `json:"coins_awarded"`
	Balance      int     `json:"balance"`
}

type PersonalRecord struct {
	Difficulty   Difficulty `json:"difficulty"`
	Milliseconds int        `json:"milliseconds"`
}
