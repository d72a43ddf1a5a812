package store

import (
	"sync"
	"time"

	"github.com/efreitasn/dexbook/internal/domain"
)

// TapeEntry is one executed trade as recorded on the tape.
type TapeEntry struct {
	Seq        uint64
	Trade      domain.Trade
	ExecutedAt time.Time
}

// TradeStore is a thread-safe in-memory tape of executed trades.
// Trades are append-only and chronological.
type TradeStore struct {
	mu     sync.RWMutex
	trades []TapeEntry
	now    func() time.Time
}

// NewTradeStore creates an empty TradeStore.
func NewTradeStore() *TradeStore {
	return &TradeStore{now: time.Now}
}

// OnTrade implements domain.TradeListener by appending the trade.
func (s *TradeStore) OnTrade(t domain.Trade) error {
	s.Append(t, s.now())
	return nil
}

// Append adds a trade to the tape.
func (s *TradeStore) Append(t domain.Trade, executedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trades = append(s.trades, TapeEntry{
		Seq:        uint64(len(s.trades)) + 1,
		Trade:      t,
		ExecutedAt: executedAt,
	})
}

// Recent returns up to n trades, newest first. Returns an empty slice
// if the tape is empty or n is not positive.
func (s *TradeStore) Recent(n int) []TapeEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n = max(0, min(n, len(s.trades)))
	result := make([]TapeEntry, 0, n)
	for i := len(s.trades) - 1; i >= 0 && len(result) < n; i-- {
		result = append(result, s.trades[i])
	}
	return result
}

// Since returns the trades executed at or after start, oldest first.
func (s *TradeStore) Since(start time.Time) []TapeEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := len(s.trades)
	for i > 0 && !s.trades[i-1].ExecutedAt.Before(start) {
		i--
	}
	result := make([]TapeEntry, len(s.trades)-i)
	copy(result, s.trades[i:])
	return result
}

// Last returns the most recent trade.
func (s *TradeStore) Last() (TapeEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.trades) == 0 {
		return TapeEntry{}, false
	}
	return s.trades[len(s.trades)-1], true
}

// Len returns the number of trades on the tape.
func (s *TradeStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.trades)
}
