package interfaces

import (
	"context"

	"github.com/Vinmsh25/skillbarter/pkg/types"
)

// SessionEngine is the timer state machine and session lifecycle surface
// consumed by the HTTP API and the realtime layer.
type SessionEngine interface {
	CreateSession(ctx context.Context, callerID, partnerID string) (*types.Session, error)
	GetSession(ctx context.Context, sessionID string) (*types.Session, error)
	SessionTimers(ctx context.Context, sessionID string) ([]*types.SessionTimer, error)
	StartTimer(ctx context.Context, sessionID, callerID string) (*types.SessionTimer, error)
	StopTimer(ctx context.Context, sessionID, callerID string) (*types.SessionTimer, error)
	EndSession(ctx context.Context, sessionID, callerID string) (*types.SettlementSummary, error)
}
