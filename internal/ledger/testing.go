package ledger

import "github.com/congo-pay/settlement/internal/money"

// SeedBalance is a test helper that sets a participant's balance when using the in-memory store.
func SeedBalance(s Store, participantID string, amount money.Money) {
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		p := mem.participants[participantID]
		p.Balance = amount
		mem.participants[participantID] = p
	}
}
