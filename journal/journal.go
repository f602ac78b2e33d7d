// Package journal records the engine's trade notifications as an
// append-only, hash-chained log. Each entry commits to its predecessor
// by hash, so any later tampering with a stored entry is detectable by
// replaying the chain.
package journal

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// Kind tags what an entry records.
type Kind string

const (
	KindBuy          Kind = "buy"
	KindSell         Kind = "sell"
	KindTransfer     Kind = "transfer"
	KindTransferFrom Kind = "transfer-from"
)

var (
	// ErrSequenceConflict is returned when an append races another
	// writer on the same store.
	ErrSequenceConflict = errors.New("journal: sequence conflict")

	// ErrChainBroken is the sentinel wrapped by ChainError.
	ErrChainBroken = errors.New("journal: hash chain broken")
)

// ChainError reports the first entry whose hash linkage fails.
type ChainError struct {
	Seq    uint64
	Reason string
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("journal: hash chain broken at seq %d: %s", e.Seq, e.Reason)
}

func (e *ChainError) Unwrap() error { return ErrChainBroken }

// Entry is one recorded operation. Monetary fields are decimal strings
// of 256-bit unsigned values; fields not meaningful for the entry's
// kind are empty.
type Entry struct {
	ID           string    `json:"id"`
	Seq          uint64    `json:"seq"`
	Kind         Kind      `json:"kind"`
	Account      string    `json:"account"`
	Counterparty string    `json:"counterparty,omitempty"`
	Amount       string    `json:"amount"`
	Value        string    `json:"value,omitempty"`  // attached value (buy)
	Cost         string    `json:"cost,omitempty"`   // curve cost (buy)
	Change       string    `json:"change,omitempty"` // refunded excess (buy)
	Payout       string    `json:"payout,omitempty"` // curve payout (sell)
	Supply       string    `json:"supply"`           // total supply after the operation
	Timestamp    time.Time `json:"timestamp"`
	PrevHash     string    `json:"prev_hash"`
	Hash         string    `json:"hash"`
}

// HashEntry computes the entry's chain hash: sha256 over a canonical
// field encoding plus the previous hash. Seq and PrevHash are inputs;
// Hash itself is not.
func HashEntry(e *Entry) string {
	h := sha256.New()
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, e.Seq)
	h.Write(buf)
	for _, field := range []string{
		e.ID, string(e.Kind), e.Account, e.Counterparty,
		e.Amount, e.Value, e.Cost, e.Change, e.Payout, e.Supply,
		e.Timestamp.UTC().Format(time.RFC3339Nano), e.PrevHash,
	} {
		binary.BigEndian.PutUint64(buf, uint64(len(field)))
		h.Write(buf)
		h.Write([]byte(field))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Writer is the sink the orchestrator emits notifications into.
type Writer interface {
	// Append assigns the entry's sequence number and chain hashes, then
	// persists it. Entries are immutable once appended.
	Append(ctx context.Context, e *Entry) error
}

// Store is a readable journal.
type Store interface {
	Writer

	// Read returns entries with Seq >= fromSeq in order.
	Read(ctx context.Context, fromSeq uint64) ([]*Entry, error)

	// Head returns the latest entry, or nil for an empty journal.
	Head(ctx context.Context) (*Entry, error)

	// Close releases underlying resources.
	Close() error
}

// Verify replays the store's chain and returns a ChainError at the
// first entry whose linkage or hash does not check out.
func Verify(ctx context.Context, store Store) error {
	entries, err := store.Read(ctx, 0)
	if err != nil {
		return err
	}

	prevHash := ""
	for i, e := range entries {
		if e.Seq != uint64(i)+1 {
			return &ChainError{Seq: e.Seq, Reason: fmt.Sprintf("expected seq %d", i+1)}
		}
		if e.PrevHash != prevHash {
			return &ChainError{Seq: e.Seq, Reason: "prev hash mismatch"}
		}
		if HashEntry(e) != e.Hash {
			return &ChainError{Seq: e.Seq, Reason: "hash mismatch"}
		}
		prevHash = e.Hash
	}
	return nil
}
