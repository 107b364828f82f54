package interfaces

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Vinmsh25/skillbarter/pkg/types"
)

// Store is the persistence boundary for users, sessions, timers, and the
// credit ledger. Implementations must serialize writes; the settlement
// mutation in particular is all-or-nothing.
type Store interface {
	CreateUser(ctx context.Context, user *types.User) error
	GetUser(ctx context.Context, userID string) (*types.User, error)

	CreateSession(ctx context.Context, session *types.Session) error
	GetSession(ctx context.Context, sessionID string) (*types.Session, error)
	ListActiveSessions(ctx context.Context) ([]*types.Session, error)

	InsertTimer(ctx context.Context, timer *types.SessionTimer) error
	StopTimer(ctx context.Context, timerID string, stoppedAt time.Time) error
	// GetActiveTimer returns nil, nil when no timer is running.
	GetActiveTimer(ctx context.Context, sessionID string) (*types.SessionTimer, error)
	GetSessionTimers(ctx context.Context, sessionID string) ([]*types.SessionTimer, error)

	// ApplySettlement closes the session and applies every ledger write in
	// one transaction. Returns types.ErrAlreadyEnded if the session is no
	// longer active.
	ApplySettlement(ctx context.Context, mutation *types.SettlementMutation) error
	BankBalance(ctx context.Context) (decimal.Decimal, error)

	HealthCheck(ctx context.Context) error
	Close() error
}
