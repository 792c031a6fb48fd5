package ledger

// SeedBalance is a test helper that seeds the balance of a wallet when using
// the in-memory ledger.
func SeedBalance(l Ledger, walletID string, amount int64) {
	if mem, ok := l.(*inMemoryLedger); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.balances[WalletAccountCode(walletID)] = amount
	}
}

// JournalCount reports how many journals the in-memory ledger recorded.
// It returns -1 for other backends.
func JournalCount(l Ledger) int {
	mem, ok := l.(*inMemoryLedger)
	if !ok {
		return -1
	}
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	return len(mem.journals)
}

// LastTransfer returns the most recent transfer recorded by the in-memory
// ledger.
func LastTransfer(l Ledger) (IntraledgerTransfer, bool) {
	mem, ok := l.(*inMemoryLedger)
	if !ok {
		return IntraledgerTransfer{}, false
	}
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	if len(mem.journals) == 0 {
		return IntraledgerTransfer{}, false
	}
	return mem.journals[len(mem.journals)-1].transfer, true
}
