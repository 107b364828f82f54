package timer

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Vinmsh25/skillbarter/internal/settlement"
	"github.com/Vinmsh25/skillbarter/pkg/interfaces"
	"github.com/Vinmsh25/skillbarter/pkg/types"
)

// Engine is the session timer state machine. All timer transitions and the
// end-of-session settlement for one session run under that session's mutex,
// which is what upholds the at-most-one-running-timer invariant when both
// participants race start/stop calls.
type Engine struct {
	store      interfaces.Store
	settlement *settlement.Engine

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	now func() time.Time
}

// NewEngine creates a session engine.
func NewEngine(store interfaces.Store, settlementEngine *settlement.Engine) *Engine {
	return &Engine{
		store:      store,
		settlement: settlementEngine,
		locks:      make(map[string]*sync.Mutex),
		now:        time.Now,
	}
}

// sessionLock returns the mutex serializing operations on one session.
// Locks are never removed; a session's critical section stays valid for
// the process lifetime.
func (e *Engine) sessionLock(sessionID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, exists := e.locks[sessionID]
	if !exists {
		lock = &sync.Mutex{}
		e.locks[sessionID] = lock
	}
	return lock
}

// CreateSession creates an active session between the caller and a partner.
func (e *Engine) CreateSession(ctx context.Context, callerID, partnerID string) (*types.Session, error) {
	if !types.IsValidUserID(callerID) || !types.IsValidUserID(partnerID) {
		return nil, fmt.Errorf("invalid participant ID")
	}
	if callerID == partnerID {
		return nil, fmt.Errorf("a session needs two distinct participants")
	}

	// Both participants must exist; balances are read from them at settlement.
	if _, err := e.store.GetUser(ctx, callerID); err != nil {
		return nil, err
	}
	if _, err := e.store.GetUser(ctx, partnerID); err != nil {
		return nil, err
	}

	session := &types.Session{
		ID:        uuid.New().String(),
		UserA:     callerID,
		UserB:     partnerID,
		IsActive:  true,
		CreatedAt: e.now(),
	}

	if err := e.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	log.Printf("Created session: id=%s user_a=%s user_b=%s", session.ID, session.UserA, session.UserB)
	return session, nil
}

// GetSession retrieves a session by ID.
func (e *Engine) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	return e.store.GetSession(ctx, sessionID)
}

// SessionTimers returns the session's timer history, oldest first.
func (e *Engine) SessionTimers(ctx context.Context, sessionID string) ([]*types.SessionTimer, error) {
	return e.store.GetSessionTimers(ctx, sessionID)
}

// StartTimer starts the caller's teaching timer. If the other participant's
// timer is running it is implicitly stopped first; switching needs no
// explicit stop call. Starting on top of your own running timer is rejected
// with ErrAlreadyRunning.
func (e *Engine) StartTimer(ctx context.Context, sessionID, callerID string) (*types.SessionTimer, error) {
	lock := e.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.HasParticipant(callerID) {
		return nil, types.ErrNotParticipant
	}
	if !session.IsActive {
		return nil, types.ErrSessionInactive
	}

	active, err := e.store.GetActiveTimer(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		if active.Teacher == callerID {
			return nil, types.ErrAlreadyRunning
		}
		// Implicit switch: record the other teacher's elapsed interval
		// before the caller's timer starts.
		if err := e.store.StopTimer(ctx, active.ID, e.now()); err != nil {
			return nil, fmt.Errorf("failed to stop running timer: %w", err)
		}
	}

	timer := &types.SessionTimer{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Teacher:   callerID,
		StartedAt: e.now(),
	}
	if err := e.store.InsertTimer(ctx, timer); err != nil {
		return nil, fmt.Errorf("failed to start timer: %w", err)
	}

	log.Printf("Timer started: session=%s teacher=%s", sessionID, callerID)
	return timer, nil
}

// StopTimer stops the caller's running timer. Only the owner may stop it.
func (e *Engine) StopTimer(ctx context.Context, sessionID, callerID string) (*types.SessionTimer, error) {
	lock := e.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.HasParticipant(callerID) {
		return nil, types.ErrNotParticipant
	}

	active, err := e.store.GetActiveTimer(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, types.ErrNoActiveTimer
	}
	if active.Teacher != callerID {
		return nil, types.ErrNotOwner
	}

	stoppedAt := e.now()
	if err := e.store.StopTimer(ctx, active.ID, stoppedAt); err != nil {
		return nil, fmt.Errorf("failed to stop timer: %w", err)
	}
	active.StoppedAt = &stoppedAt

	log.Printf("Timer stopped: session=%s teacher=%s seconds=%d",
		sessionID, callerID, active.DurationSeconds())
	return active, nil
}

// EndSession stops any running timer (whoever owns it), marks the session
// inactive, and settles accumulated teaching time. The settlement and the
// session flip commit as one atomic unit; on a storage fault the session
// stays active and the caller may retry.
func (e *Engine) EndSession(ctx context.Context, sessionID, callerID string) (*types.SettlementSummary, error) {
	lock := e.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.HasParticipant(callerID) {
		return nil, types.ErrNotParticipant
	}
	if !session.IsActive {
		return nil, types.ErrAlreadyEnded
	}

	endedAt := e.now()

	active, err := e.store.GetActiveTimer(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		if err := e.store.StopTimer(ctx, active.ID, endedAt); err != nil {
			return nil, fmt.Errorf("failed to stop running timer: %w", err)
		}
	}

	timers, err := e.store.GetSessionTimers(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	secondsA := TeachingSeconds(timers, session.UserA)
	secondsB := TeachingSeconds(timers, session.UserB)

	summary, err := e.settlement.Settle(ctx, session, secondsA, secondsB, endedAt)
	if err != nil {
		return nil, err
	}

	log.Printf("Session ended: id=%s seconds_a=%d seconds_b=%d bank_cut=%s",
		sessionID, secondsA, secondsB, summary.BankCut.String())
	return summary, nil
}

// TeachingSeconds sums the recorded whole-second durations of a user's
// stopped timers. Running timers contribute nothing until stopped.
func TeachingSeconds(timers []*types.SessionTimer, userID string) int64 {
	var total int64
	for _, t := range timers {
		if t.Teacher == userID && !t.Running() {
			total += t.DurationSeconds()
		}
	}
	return total
}
