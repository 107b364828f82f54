package settlement

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
)

func TestBankConcurrentAddCredits(t *testing.T) {
	bank := NewBank(decimal.Zero)
	cut := decimal.RequireFromString("0.1")

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bank.AddCredits(cut)
		}()
	}
	wg.Wait()

	if !bank.Credits().Equal(decimal.RequireFromString("10")) {
		t.Errorf("bank balance = %s, want 10", bank.Credits())
	}
}

func TestBankStartingBalance(t *testing.T) {
	bank := NewBank(decimal.RequireFromString("2.5"))
	bank.AddCredits(decimal.RequireFromString("0.5"))

	if !bank.Credits().Equal(decimal.RequireFromString("3")) {
		t.Errorf("bank balance = %s, want 3", bank.Credits())
	}
}
