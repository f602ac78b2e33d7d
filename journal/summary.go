package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/holiman/uint256"
)

// Summary aggregates a journal: operation counts, gross value flow, and
// the covered time range.
type Summary struct {
	Entries   int
	Buys      int
	Sells     int
	Transfers int

	// ValueIn is the total curve cost collected by buys; ValueOut the
	// total payout released by sells.
	ValueIn  *uint256.Int
	ValueOut *uint256.Int

	// FinalSupply is the supply after the newest entry.
	FinalSupply *uint256.Int

	StartTime time.Time
	EndTime   time.Time
}

// Summarize reads the whole journal and computes its summary.
func Summarize(ctx context.Context, store Store) (*Summary, error) {
	entries, err := store.Read(ctx, 0)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		ValueIn:     new(uint256.Int),
		ValueOut:    new(uint256.Int),
		FinalSupply: new(uint256.Int),
	}

	for _, e := range entries {
		summary.Entries++
		switch e.Kind {
		case KindBuy:
			summary.Buys++
			if err := accumulate(summary.ValueIn, e.Cost); err != nil {
				return nil, fmt.Errorf("entry %d: %w", e.Seq, err)
			}
		case KindSell:
			summary.Sells++
			if err := accumulate(summary.ValueOut, e.Payout); err != nil {
				return nil, fmt.Errorf("entry %d: %w", e.Seq, err)
			}
		case KindTransfer, KindTransferFrom:
			summary.Transfers++
		}

		if e.Supply != "" {
			if err := summary.FinalSupply.SetFromDecimal(e.Supply); err != nil {
				return nil, fmt.Errorf("entry %d: parse supply: %w", e.Seq, err)
			}
		}
		if summary.StartTime.IsZero() || e.Timestamp.Before(summary.StartTime) {
			summary.StartTime = e.Timestamp
		}
		if e.Timestamp.After(summary.EndTime) {
			summary.EndTime = e.Timestamp
		}
	}
	return summary, nil
}

func accumulate(total *uint256.Int, decimal string) error {
	if decimal == "" {
		return nil
	}
	v := new(uint256.Int)
	if err := v.SetFromDecimal(decimal); err != nil {
		return fmt.Errorf("parse value: %w", err)
	}
	total.Add(total, v)
	return nil
}
