package timer

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Vinmsh25/skillbarter/internal/settlement"
	"github.com/Vinmsh25/skillbarter/pkg/types"
)

// mockStore implements interfaces.Store in memory.
type mockStore struct {
	mu       sync.Mutex
	users    map[string]*types.User
	sessions map[string]*types.Session
	timers   map[string]*types.SessionTimer
	applied  []*types.SettlementMutation
}

func newMockStore() *mockStore {
	return &mockStore{
		users:    make(map[string]*types.User),
		sessions: make(map[string]*types.Session),
		timers:   make(map[string]*types.SessionTimer),
	}
}

func (m *mockStore) CreateUser(ctx context.Context, user *types.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
	return nil
}

func (m *mockStore) GetUser(ctx context.Context, userID string) (*types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return nil, types.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (m *mockStore) CreateSession(ctx context.Context, session *types.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = session
	return nil
}

func (m *mockStore) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, types.ErrSessionNotFound
	}
	copied := *session
	return &copied, nil
}

func (m *mockStore) ListActiveSessions(ctx context.Context) ([]*types.Session, error) {
	return nil, nil
}

func (m *mockStore) InsertTimer(ctx context.Context, timer *types.SessionTimer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *timer
	m.timers[timer.ID] = &copied
	return nil
}

func (m *mockStore) StopTimer(ctx context.Context, timerID string, stoppedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	timer, ok := m.timers[timerID]
	if !ok || timer.StoppedAt != nil {
		return types.ErrNoActiveTimer
	}
	timer.StoppedAt = &stoppedAt
	return nil
}

func (m *mockStore) GetActiveTimer(ctx context.Context, sessionID string) (*types.SessionTimer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, timer := range m.timers {
		if timer.SessionID == sessionID && timer.StoppedAt == nil {
			copied := *timer
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *mockStore) GetSessionTimers(ctx context.Context, sessionID string) ([]*types.SessionTimer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var timers []*types.SessionTimer
	for _, timer := range m.timers {
		if timer.SessionID == sessionID {
			copied := *timer
			timers = append(timers, &copied)
		}
	}
	sort.Slice(timers, func(i, j int) bool { return timers[i].StartedAt.Before(timers[j].StartedAt) })
	return timers, nil
}

func (m *mockStore) ApplySettlement(ctx context.Context, mutation *types.SettlementMutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[mutation.SessionID]
	if !ok {
		return types.ErrSessionNotFound
	}
	if !session.IsActive {
		return types.ErrAlreadyEnded
	}
	session.IsActive = false
	session.EndedAt = &mutation.EndedAt
	for userID, delta := range mutation.Deltas {
		m.users[userID].Credits = m.users[userID].Credits.Add(delta)
	}
	m.applied = append(m.applied, mutation)
	return nil
}

func (m *mockStore) BankBalance(ctx context.Context) (decimal.Decimal, error) {
	return decimal.Zero, nil
}
func (m *mockStore) HealthCheck(ctx context.Context) error { return nil }
func (m *mockStore) Close() error                          { return nil }

func (m *mockStore) runningTimers(sessionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, timer := range m.timers {
		if timer.SessionID == sessionID && timer.StoppedAt == nil {
			count++
		}
	}
	return count
}

// fakeClock steps engine time deterministically.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestEngine(t *testing.T) (*Engine, *mockStore, *fakeClock) {
	t.Helper()
	store := newMockStore()
	store.users["alice"] = &types.User{ID: "alice", Name: "Alice", Credits: decimal.RequireFromString("10")}
	store.users["bob"] = &types.User{ID: "bob", Name: "Bob", Credits: decimal.RequireFromString("10")}

	bank := settlement.NewBank(decimal.Zero)
	engine := NewEngine(store, settlement.NewEngine(store, bank))

	clock := newFakeClock()
	engine.now = clock.Now

	return engine, store, clock
}

func createTestSession(t *testing.T, engine *Engine) *types.Session {
	t.Helper()
	session, err := engine.CreateSession(context.Background(), "alice", "bob")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	return session
}

func TestCreateSessionValidation(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := engine.CreateSession(ctx, "alice", "alice"); err == nil {
		t.Error("expected error for identical participants")
	}
	if _, err := engine.CreateSession(ctx, "alice", "nobody"); !errors.Is(err, types.ErrUserNotFound) {
		t.Errorf("err = %v, want ErrUserNotFound", err)
	}
	if _, err := engine.CreateSession(ctx, "alice", "bad id!"); err == nil {
		t.Error("expected error for invalid partner ID")
	}

	session, err := engine.CreateSession(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if !session.IsActive {
		t.Error("new session should be active")
	}
}

func TestStartTimerRejections(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()
	session := createTestSession(t, engine)

	if _, err := engine.StartTimer(ctx, session.ID, "carol"); !errors.Is(err, types.ErrNotParticipant) {
		t.Errorf("non-participant start: err = %v, want ErrNotParticipant", err)
	}
	if _, err := engine.StartTimer(ctx, "missing", "alice"); !errors.Is(err, types.ErrSessionNotFound) {
		t.Errorf("unknown session start: err = %v, want ErrSessionNotFound", err)
	}

	if _, err := engine.StartTimer(ctx, session.ID, "alice"); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	if _, err := engine.StartTimer(ctx, session.ID, "alice"); !errors.Is(err, types.ErrAlreadyRunning) {
		t.Errorf("repeat start: err = %v, want ErrAlreadyRunning", err)
	}
}

func TestStartTimerOnEndedSession(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()
	session := createTestSession(t, engine)

	if _, err := engine.EndSession(ctx, session.ID, "alice"); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}
	if _, err := engine.StartTimer(ctx, session.ID, "alice"); !errors.Is(err, types.ErrSessionInactive) {
		t.Errorf("err = %v, want ErrSessionInactive", err)
	}
}

func TestImplicitTimerSwitch(t *testing.T) {
	engine, store, clock := newTestEngine(t)
	ctx := context.Background()
	session := createTestSession(t, engine)

	first, err := engine.StartTimer(ctx, session.ID, "alice")
	if err != nil {
		t.Fatalf("start alice: %v", err)
	}

	clock.Advance(650 * time.Second)

	// Bob starting implicitly stops Alice's timer; no explicit stop needed.
	second, err := engine.StartTimer(ctx, session.ID, "bob")
	if err != nil {
		t.Fatalf("start bob: %v", err)
	}

	timers, err := engine.SessionTimers(ctx, session.ID)
	if err != nil {
		t.Fatalf("SessionTimers failed: %v", err)
	}
	if len(timers) != 2 {
		t.Fatalf("timer count = %d, want 2", len(timers))
	}
	if store.runningTimers(session.ID) != 1 {
		t.Fatalf("running timers = %d, want 1", store.runningTimers(session.ID))
	}

	stopped := timers[0]
	if stopped.ID != first.ID || stopped.Running() {
		t.Fatal("alice's timer should be the stopped one")
	}
	if got := stopped.DurationSeconds(); got != 650 {
		t.Errorf("switched-out duration = %d, want 650", got)
	}
	if timers[1].ID != second.ID || timers[1].Teacher != "bob" || !timers[1].Running() {
		t.Error("bob's timer should be the running one")
	}
}

func TestStopTimer(t *testing.T) {
	engine, _, clock := newTestEngine(t)
	ctx := context.Background()
	session := createTestSession(t, engine)

	if _, err := engine.StopTimer(ctx, session.ID, "alice"); !errors.Is(err, types.ErrNoActiveTimer) {
		t.Errorf("stop without timer: err = %v, want ErrNoActiveTimer", err)
	}

	if _, err := engine.StartTimer(ctx, session.ID, "alice"); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	if _, err := engine.StopTimer(ctx, session.ID, "bob"); !errors.Is(err, types.ErrNotOwner) {
		t.Errorf("stop by other user: err = %v, want ErrNotOwner", err)
	}
	if _, err := engine.StopTimer(ctx, session.ID, "carol"); !errors.Is(err, types.ErrNotParticipant) {
		t.Errorf("stop by stranger: err = %v, want ErrNotParticipant", err)
	}

	clock.Advance(301 * time.Second)

	timer, err := engine.StopTimer(ctx, session.ID, "alice")
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if timer.Running() {
		t.Error("stopped timer should not be running")
	}
	if got := timer.DurationSeconds(); got != 301 {
		t.Errorf("duration = %d, want 301", got)
	}

	if _, err := engine.StopTimer(ctx, session.ID, "alice"); !errors.Is(err, types.ErrNoActiveTimer) {
		t.Errorf("second stop: err = %v, want ErrNoActiveTimer", err)
	}
}

func TestEndSession(t *testing.T) {
	engine, store, clock := newTestEngine(t)
	ctx := context.Background()
	session := createTestSession(t, engine)

	if _, err := engine.EndSession(ctx, session.ID, "carol"); !errors.Is(err, types.ErrNotParticipant) {
		t.Errorf("end by stranger: err = %v, want ErrNotParticipant", err)
	}

	// A running timer is stopped by endSession regardless of who owns it,
	// and its interval counts toward settlement.
	if _, err := engine.StartTimer(ctx, session.ID, "alice"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	clock.Advance(650 * time.Second)

	summary, err := engine.EndSession(ctx, session.ID, "bob")
	if err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}
	if summary.UserA.TeachingSeconds != 650 {
		t.Errorf("alice teaching seconds = %d, want 650", summary.UserA.TeachingSeconds)
	}
	if store.runningTimers(session.ID) != 0 {
		t.Error("no timer should be running after end")
	}

	ended, err := engine.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if ended.IsActive || ended.EndedAt == nil {
		t.Error("session should be inactive with an end time")
	}

	if _, err := engine.EndSession(ctx, session.ID, "alice"); !errors.Is(err, types.ErrAlreadyEnded) {
		t.Errorf("second end: err = %v, want ErrAlreadyEnded", err)
	}
}

func TestConcurrentStartsKeepSingleRunningTimer(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()
	session := createTestSession(t, engine)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		caller := "alice"
		if i%2 == 0 {
			caller = "bob"
		}
		wg.Add(1)
		go func(caller string) {
			defer wg.Done()
			// AlreadyRunning rejections are expected under the race.
			_, _ = engine.StartTimer(ctx, session.ID, caller)
		}(caller)
	}
	wg.Wait()

	if got := store.runningTimers(session.ID); got > 1 {
		t.Fatalf("running timers = %d, invariant allows at most 1", got)
	}
}

func TestTeachingSeconds(t *testing.T) {
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	stop1 := base.Add(300 * time.Second)
	stop2 := base.Add(1000 * time.Second)

	timers := []*types.SessionTimer{
		{Teacher: "alice", StartedAt: base, StoppedAt: &stop1},
		{Teacher: "alice", StartedAt: base.Add(400 * time.Second), StoppedAt: &stop2},
		{Teacher: "bob", StartedAt: base, StoppedAt: &stop1},
		{Teacher: "alice", StartedAt: base}, // still running, contributes nothing
	}

	if got := TeachingSeconds(timers, "alice"); got != 900 {
		t.Errorf("alice teaching seconds = %d, want 900", got)
	}
	if got := TeachingSeconds(timers, "bob"); got != 300 {
		t.Errorf("bob teaching seconds = %d, want 300", got)
	}
	if got := TeachingSeconds(timers, "carol"); got != 0 {
		t.Errorf("carol teaching seconds = %d, want 0", got)
	}
}
