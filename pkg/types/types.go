package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Credit transaction kinds recorded in the ledger.
const (
	TransactionTeaching = "TEACHING"
	TransactionLearning = "LEARNING"
	TransactionBankCut  = "BANK_CUT"
)

// User holds account data for one participant. Credits is the current
// balance maintained alongside the append-only ledger.
type User struct {
	ID      string          `json:"id" db:"id"`
	Name    string          `json:"name" db:"name"`
	Credits decimal.Decimal `json:"credits" db:"credits"`
}

// Session is a two-party teach/learn session. The participant pair is fixed
// for the session's lifetime; IsActive transitions true->false exactly once.
type Session struct {
	ID        string     `json:"id" db:"id"`
	UserA     string     `json:"user_a" db:"user_a"`
	UserB     string     `json:"user_b" db:"user_b"`
	IsActive  bool       `json:"is_active" db:"is_active"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" db:"ended_at"`
}

// HasParticipant reports whether userID is one of the session's two users.
func (s *Session) HasParticipant(userID string) bool {
	return userID != "" && (userID == s.UserA || userID == s.UserB)
}

// Partner returns the other participant, or "" if userID is not a participant.
func (s *Session) Partner(userID string) string {
	switch userID {
	case s.UserA:
		return s.UserB
	case s.UserB:
		return s.UserA
	default:
		return ""
	}
}

// SessionTimer is one contiguous teaching interval within a session.
// At most one timer per session has StoppedAt == nil at any instant.
type SessionTimer struct {
	ID        string     `json:"id" db:"id"`
	SessionID string     `json:"session_id" db:"session_id"`
	Teacher   string     `json:"teacher" db:"teacher"`
	StartedAt time.Time  `json:"started_at" db:"started_at"`
	StoppedAt *time.Time `json:"stopped_at,omitempty" db:"stopped_at"`
}

// Running reports whether the timer is still accumulating time.
func (t *SessionTimer) Running() bool {
	return t.StoppedAt == nil
}

// DurationSeconds returns the recorded interval in whole seconds,
// floor-rounded. A running timer has no recorded duration yet.
func (t *SessionTimer) DurationSeconds() int64 {
	if t.StoppedAt == nil {
		return 0
	}
	return int64(t.StoppedAt.Sub(t.StartedAt) / time.Second)
}

// CreditTransaction is one immutable ledger entry. Negative amounts are
// debits, positive amounts are credits.
type CreditTransaction struct {
	ID          string          `json:"id" db:"id"`
	UserID      string          `json:"user_id" db:"user_id"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	Kind        string          `json:"kind" db:"kind"`
	SessionID   *string         `json:"session_id,omitempty" db:"session_id"`
	Description string          `json:"description" db:"description"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// Identity is a verified (or anonymous) user attached to a connection.
type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Anonymous reports whether the identity carries no verified user.
func (i Identity) Anonymous() bool {
	return i.ID == ""
}

// UserSettlement is the per-user half of a settlement summary.
type UserSettlement struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	TeachingSeconds int64           `json:"teaching_seconds"`
	CreditsEarned   decimal.Decimal `json:"credits_earned"`
	CreditsSpent    decimal.Decimal `json:"credits_spent"`
}

// SettlementSummary reports what a session's settlement transferred.
// It is a display artifact; the ledger is authoritative.
type SettlementSummary struct {
	UserA   UserSettlement  `json:"user_a"`
	UserB   UserSettlement  `json:"user_b"`
	BankCut decimal.Decimal `json:"bank_cut"`
}

// SettlementMutation is the atomic unit of ledger writes a settlement
// produces: session close, ledger entries, balance deltas, and the bank's
// cut commit together or not at all.
type SettlementMutation struct {
	SessionID string
	EndedAt   time.Time
	Entries   []*CreditTransaction
	Deltas    map[string]decimal.Decimal
	BankCut   decimal.Decimal
}
