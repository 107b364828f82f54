package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Vinmsh25/skillbarter/pkg/interfaces"
	"github.com/Vinmsh25/skillbarter/pkg/types"
)

// SecondsPerCredit is the conversion rate: 5 minutes of teaching earns one
// whole credit. Fractional remainders below the next boundary are not
// compensated.
const SecondsPerCredit = 300

// bankCutRate is the platform's share of every transfer.
var bankCutRate = decimal.New(10, -2) // 0.10

// CalculateCredits converts teaching seconds into whole credits earned.
func CalculateCredits(teachingSeconds int64) decimal.Decimal {
	if teachingSeconds <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(teachingSeconds / SecondsPerCredit)
}

// Engine computes and applies a session's bidirectional credit transfer.
type Engine struct {
	store interfaces.Store
	bank  *Bank
}

// NewEngine creates a settlement engine.
func NewEngine(store interfaces.Store, bank *Bank) *Engine {
	return &Engine{store: store, bank: bank}
}

// Settle converts both users' teaching time into credit transfers and applies
// them as one atomic unit. Direction A (userA taught, userB learns) is applied
// in full before direction B's learner balance is evaluated, so credits userA
// earned in this settlement are spendable against userB's teaching.
//
// A learner is never driven negative: the transfer is capped at their balance
// and the shortfall is simply not owed.
func (e *Engine) Settle(ctx context.Context, session *types.Session, secondsA, secondsB int64, endedAt time.Time) (*types.SettlementSummary, error) {
	userA, err := e.store.GetUser(ctx, session.UserA)
	if err != nil {
		return nil, fmt.Errorf("failed to load participant %s: %w", session.UserA, err)
	}
	userB, err := e.store.GetUser(ctx, session.UserB)
	if err != nil {
		return nil, fmt.Errorf("failed to load participant %s: %w", session.UserB, err)
	}

	summary := &types.SettlementSummary{
		UserA: types.UserSettlement{
			ID: userA.ID, Name: userA.Name, TeachingSeconds: secondsA,
			CreditsEarned: decimal.Zero, CreditsSpent: decimal.Zero,
		},
		UserB: types.UserSettlement{
			ID: userB.ID, Name: userB.Name, TeachingSeconds: secondsB,
			CreditsEarned: decimal.Zero, CreditsSpent: decimal.Zero,
		},
		BankCut: decimal.Zero,
	}

	mutation := &types.SettlementMutation{
		SessionID: session.ID,
		EndedAt:   endedAt,
		Deltas:    make(map[string]decimal.Decimal),
		BankCut:   decimal.Zero,
	}

	balances := map[string]decimal.Decimal{
		userA.ID: userA.Credits,
		userB.ID: userB.Credits,
	}

	e.applyDirection(mutation, balances, userA, userB, secondsA,
		&summary.UserA.CreditsEarned, &summary.UserB.CreditsSpent, endedAt)
	e.applyDirection(mutation, balances, userB, userA, secondsB,
		&summary.UserB.CreditsEarned, &summary.UserA.CreditsSpent, endedAt)
	summary.BankCut = mutation.BankCut

	if err := e.store.ApplySettlement(ctx, mutation); err != nil {
		return nil, err
	}

	if mutation.BankCut.IsPositive() {
		e.bank.AddCredits(mutation.BankCut)
	}

	return summary, nil
}

// applyDirection settles one teaching direction against the running balance
// view, appending its ledger entries and balance deltas to the mutation.
// A direction with nothing to transfer is a valid no-op.
func (e *Engine) applyDirection(mutation *types.SettlementMutation, balances map[string]decimal.Decimal,
	teacher, learner *types.User, teachingSeconds int64,
	earned, spent *decimal.Decimal, at time.Time) {

	needed := CalculateCredits(teachingSeconds)
	if !needed.IsPositive() {
		return
	}

	actual := decimal.Min(needed, balances[learner.ID])
	if !actual.IsPositive() {
		return
	}

	bankCut := actual.Mul(bankCutRate)
	teacherReceives := actual.Sub(bankCut)
	sessionID := mutation.SessionID

	mutation.Entries = append(mutation.Entries,
		&types.CreditTransaction{
			ID:          uuid.New().String(),
			UserID:      learner.ID,
			Amount:      actual.Neg(),
			Kind:        types.TransactionLearning,
			SessionID:   &sessionID,
			Description: fmt.Sprintf("Learning from %s", teacher.Name),
			CreatedAt:   at,
		},
		&types.CreditTransaction{
			ID:          uuid.New().String(),
			UserID:      teacher.ID,
			Amount:      teacherReceives,
			Kind:        types.TransactionTeaching,
			SessionID:   &sessionID,
			Description: fmt.Sprintf("Teaching %s", learner.Name),
			CreatedAt:   at,
		},
	)

	mutation.Deltas[learner.ID] = mutation.Deltas[learner.ID].Sub(actual)
	mutation.Deltas[teacher.ID] = mutation.Deltas[teacher.ID].Add(teacherReceives)
	mutation.BankCut = mutation.BankCut.Add(bankCut)

	balances[learner.ID] = balances[learner.ID].Sub(actual)
	balances[teacher.ID] = balances[teacher.ID].Add(teacherReceives)

	*earned = earned.Add(teacherReceives)
	*spent = spent.Add(actual)
}
