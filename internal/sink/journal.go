package sink

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/efreitasn/dexbook/internal/domain"
)

const journalPrefix = "trade/"

// Journal durably records every trade in a pebble store, keyed by a
// journal sequence so iteration returns trades in execution order.
type Journal struct {
	mu  sync.Mutex
	db  *pebble.DB
	seq uint64
}

// journalRecord is the stored value for one trade.
type journalRecord struct {
	BuyOrderID  uint64    `json:"buy_order_id"`
	SellOrderID uint64    `json:"sell_order_id"`
	Price       uint64    `json:"price"`
	Quantity    uint64    `json:"quantity"`
	Timestamp   uint64    `json:"timestamp"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// JournalEntry is one trade read back from the journal.
type JournalEntry struct {
	Seq        uint64
	Trade      domain.Trade
	RecordedAt time.Time
}

// OpenJournal opens (or creates) a journal in dir and resumes the
// sequence after the last stored trade.
func OpenJournal(dir string) (*Journal, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", dir, err)
	}
	j := &Journal{db: db}

	last, err := j.lastSeq()
	if err != nil {
		db.Close()
		return nil, err
	}
	j.seq = last
	return j, nil
}

func (j *Journal) lastSeq() (uint64, error) {
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(journalPrefix),
		UpperBound: []byte(journalPrefix + "~"),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, iter.Error()
	}
	return parseJournalKey(iter.Key())
}

// OnTrade implements domain.TradeListener. The write is synced before
// it returns.
func (j *Journal) OnTrade(t domain.Trade) error {
	val, err := json.Marshal(journalRecord{
		BuyOrderID:  t.BuyOrderID,
		SellOrderID: t.SellOrderID,
		Price:       t.Price,
		Quantity:    t.Quantity,
		Timestamp:   t.Timestamp,
		RecordedAt:  time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	seq := j.seq + 1
	if err := j.db.Set(journalKey(seq), val, pebble.Sync); err != nil {
		return fmt.Errorf("journal trade %d: %w", seq, err)
	}
	j.seq = seq
	return nil
}

// Len returns the number of trades recorded.
func (j *Journal) Len() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.seq
}

// Scan calls fn for every recorded trade in execution order. Returning
// an error from fn stops the scan and returns that error.
func (j *Journal) Scan(fn func(JournalEntry) error) error {
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(journalPrefix),
		UpperBound: []byte(journalPrefix + "~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		seq, err := parseJournalKey(iter.Key())
		if err != nil {
			return err
		}
		var rec journalRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return fmt.Errorf("decode trade %d: %w", seq, err)
		}
		entry := JournalEntry{
			Seq: seq,
			Trade: domain.Trade{
				BuyOrderID:  rec.BuyOrderID,
				SellOrderID: rec.SellOrderID,
				Price:       rec.Price,
				Quantity:    rec.Quantity,
				Timestamp:   rec.Timestamp,
			},
			RecordedAt: rec.RecordedAt,
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
	return iter.Error()
}

// Close flushes and closes the underlying store.
func (j *Journal) Close() error {
	return j.db.Close()
}

func journalKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", journalPrefix, seq))
}

func parseJournalKey(key []byte) (uint64, error) {
	s := string(key)
	if len(s) <= len(journalPrefix) {
		return 0, errors.New("invalid journal key")
	}
	seq, err := strconv.ParseUint(s[len(journalPrefix):], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid journal key %q: %w", s, err)
	}
	return seq, nil
}
