package settlement

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Bank is the process-wide account that accumulates the platform's cut.
// It mirrors the bank row the settlement transaction updates; AddCredits is
// safe under concurrent settlements of unrelated sessions.
type Bank struct {
	mu      sync.Mutex
	credits decimal.Decimal
}

// NewBank creates the bank with its persisted starting balance.
func NewBank(initial decimal.Decimal) *Bank {
	return &Bank{credits: initial}
}

// AddCredits adds a settlement cut to the bank's balance.
func (b *Bank) AddCredits(amount decimal.Decimal) {
	b.mu.Lock()
	b.credits = b.credits.Add(amount)
	b.mu.Unlock()
}

// Credits returns the current balance.
func (b *Bank) Credits() decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.credits
}
