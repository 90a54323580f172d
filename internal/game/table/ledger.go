package table

import (
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// PotCount is fixed: every table has exactly three pots.
const PotCount = 3

// Contribution is one accepted wager.
type Contribution struct {
	RoundID       string    `json:"roundId"`
	UserID        string    `json:"userId"`
	Pot           int       `json:"potIndex"`
	Amount        int64     `json:"amount"`
	BetType       int       `json:"betType"`
	TransactionID string    `json:"transactionId"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Snapshot is a consistent copy of the ledger taken under its lock.
type Snapshot struct {
	RoundID       string
	Totals        [PotCount]int64
	Contributions []Contribution
}

// TotalsByUser sums the snapshot's contributions to pot per user.
func (s Snapshot) TotalsByUser(pot int) map[string]int64 {
	out := make(map[string]int64)
	for _, c := range s.Contributions {
		if c.Pot == pot {
			out[c.UserID] += c.Amount
		}
	}
	return out
}

// TotalsMap returns the pot totals keyed by pot index.
func (s Snapshot) TotalsMap() map[int]int64 {
	out := make(map[int]int64, PotCount)
	for i, v := range s.Totals {
		out[i] = v
	}
	return out
}

// Ledger holds the in-round pot totals and contributions. All methods are
// safe for concurrent use.
type Ledger struct {
	mu            sync.Mutex
	roundID       string
	totals        [PotCount]int64
	contributions []Contribution
}

var (
	ulidEntropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	ulidEntropyMu sync.Mutex
)

// NewRoundID mints a sortable round identifier.
func NewRoundID() string {
	ulidEntropyMu.Lock()
	defer ulidEntropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulidEntropy).String()
}

func NewLedger() *Ledger {
	return &Ledger{roundID: NewRoundID()}
}

// Add records c against the current round and returns the round id it was
// stamped with. The pot index must already be validated.
func (l *Ledger) Add(c Contribution) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	c.RoundID = l.roundID
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	l.totals[c.Pot] += c.Amount
	l.contributions = append(l.contributions, c)
	return l.roundID
}

func (l *Ledger) Totals() [PotCount]int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totals
}

func (l *Ledger) RoundID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.roundID
}

func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

// TakeSnapshot returns the current round and resets the ledger to a fresh
// empty round in one step, so no Add can land between the read and the reset.
func (l *Ledger) TakeSnapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.snapshotLocked()
	l.totals = [PotCount]int64{}
	l.contributions = nil
	l.roundID = NewRoundID()
	return s
}

func (l *Ledger) snapshotLocked() Snapshot {
	cs := make([]Contribution, len(l.contributions))
	copy(cs, l.contributions)
	return Snapshot{
		RoundID:       l.roundID,
		Totals:        l.totals,
		Contributions: cs,
	}
}
