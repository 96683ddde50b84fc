// Package slots implements the outcome generator and payout evaluator
// for a 3x3 slot machine. Outcomes are drawn uniformly per cell from a
// fixed symbol alphabet; a fixed set of lines (middle row and both
// diagonals) is evaluated against an exact-triple payout table.
package slots

import (
	"encoding/json"
	"math/rand/v2"
	"strings"
)

const (
	Rows  = 3
	Reels = 3
)

// Alphabet is the fixed symbol set. Draws are uniform over this slice.
var Alphabet = []string{"⭐", "7️⃣", "💎", "🍇", "🍊", "🍋", "🍒"}

// Grid is a spin outcome, indexed as Grid[row][reel].
type Grid [Rows][Reels]string

// Position addresses a single cell of the grid.
type Position struct {
	Row  int `json:"row"`
	Reel int `json:"reel"`
}

// Lines are the index triples evaluated for payouts: middle row,
// diagonal down, diagonal up.
var Lines = [][Reels]Position{
	{{Row: 1, Reel: 0}, {Row: 1, Reel: 1}, {Row: 1, Reel: 2}},
	{{Row: 0, Reel: 0}, {Row: 1, Reel: 1}, {Row: 2, Reel: 2}},
	{{Row: 2, Reel: 0}, {Row: 1, Reel: 1}, {Row: 0, Reel: 2}},
}

// PayoutTable maps an exact same-symbol triple (order-preserving join
// of the line's symbols) to credits won. Lines without an entry pay 0.
// Only exact triples pay; there is no partial-match or wild logic.
var PayoutTable = map[string]int64{
	"⭐⭐⭐":    360,
	"7️⃣7️⃣7️⃣": 180,
	"💎💎💎":    84,
	"🍇🍇🍇":    42,
	"🍊🍊🍊":    24,
	"🍋🍋🍋":    12,
	"🍒🍒🍒":    6,
}

// LineWin reports one winning line of an evaluated outcome.
type LineWin struct {
	Line    int    `json:"line"`
	Key     string `json:"key"`
	Credits int64  `json:"credits"`
}

// Evaluation is the result of evaluating a grid against the table.
type Evaluation struct {
	Wins         []LineWin `json:"wins"`
	TotalCredits int64     `json:"total_credits"`
}

// Source is the random source used for draws. Satisfied by
// *rand.Rand; tests inject a deterministic implementation.
type Source interface {
	IntN(n int) int
}

// Generator draws independent uniform grids from its source.
type Generator struct {
	src Source
}

// NewGenerator returns a generator backed by the given source, or by
// the shared math/rand/v2 generator when src is nil. Draws are
// independent per call; no seed is persisted.
func NewGenerator(src Source) *Generator {
	if src == nil {
		src = defaultSource{}
	}
	return &Generator{src: src}
}

type defaultSource struct{}

func (defaultSource) IntN(n int) int { return rand.IntN(n) }

// Generate draws a full grid, one uniform symbol per cell.
func (g *Generator) Generate() Grid {
	var grid Grid
	for row := 0; row < Rows; row++ {
		for reel := 0; reel < Reels; reel++ {
			grid[row][reel] = Alphabet[g.src.IntN(len(Alphabet))]
		}
	}
	return grid
}

// LineKey joins a line's symbols in order into its table lookup key.
func LineKey(grid Grid, line [Reels]Position) string {
	var b strings.Builder
	for _, pos := range line {
		b.WriteString(grid[pos.Row][pos.Reel])
	}
	return b.String()
}

// Evaluate looks up every line of the grid in the payout table and
// sums credits won. Deterministic for a fixed grid.
func Evaluate(grid Grid) Evaluation {
	var ev Evaluation
	for i, line := range Lines {
		key := LineKey(grid, line)
		credits, ok := PayoutTable[key]
		if !ok {
			continue
		}
		ev.Wins = append(ev.Wins, LineWin{Line: i, Key: key, Credits: credits})
		ev.TotalCredits += credits
	}
	return ev
}

// Outcome bundles a grid with its evaluation for persistence and for
// returning to the client.
type Outcome struct {
	Grid Grid `json:"grid"`
	Evaluation
}

// Spin generates and evaluates a single outcome.
func (g *Generator) Spin() Outcome {
	grid := g.Generate()
	return Outcome{Grid: grid, Evaluation: Evaluate(grid)}
}

// MarshalOutcome serializes an outcome for the append-only spin record.
func MarshalOutcome(o Outcome) ([]byte, error) {
	return json.Marshal(o)
}
