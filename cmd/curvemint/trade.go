package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/curvemint/go-curvemint/cooldown"
	"github.com/curvemint/go-curvemint/curve"
	"github.com/curvemint/go-curvemint/exchange"
	"github.com/curvemint/go-curvemint/journal"
	"github.com/curvemint/go-curvemint/ledger"
)

// scriptOp is one operation in a trade script.
type scriptOp struct {
	Op      string `json:"op"` // buy, sell, transfer, transfer-from, approve, wait
	Account string `json:"account,omitempty"`
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	Spender string `json:"spender,omitempty"`
	Amount  string `json:"amount,omitempty"`
	Value   string `json:"value,omitempty"`    // attached value for buy
	Wait    string `json:"duration,omitempty"` // for wait, e.g. "5m"
}

func trade(args []string) error {
	fs := flag.NewFlagSet("trade", flag.ExitOnError)
	slopeFlag := fs.String("slope", defaultSlope, "Curve slope in smallest value units (must be even)")
	cooldownFlag := fs.Duration("cooldown", cooldown.DefaultDuration, "Holding period")
	dbPath := fs.String("db", "", "Journal SQLite path (in-memory journal if empty)")
	verbose := fs.Bool("verbose", true, "Log each operation")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: curvemint trade [options] <script.json>

Execute a JSON script of operations against a fresh engine. A script is
an array of operations:

  [
    {"op": "buy", "account": "alice", "amount": "2", "value": "300000000000000"},
    {"op": "wait", "duration": "5m"},
    {"op": "sell", "account": "alice", "amount": "1"},
    {"op": "transfer", "from": "alice", "to": "bob", "amount": "1"}
  ]

The clock is simulated: time only advances through wait operations.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return fmt.Errorf("script file required")
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	var script []scriptOp
	if err := json.Unmarshal(data, &script); err != nil {
		return fmt.Errorf("parse script: %w", err)
	}

	slope, err := parseUint(*slopeFlag, "slope")
	if err != nil {
		return err
	}
	c, err := curve.New(slope)
	if err != nil {
		return err
	}

	var store journal.Store
	if *dbPath != "" {
		store, err = journal.NewSQLiteStore(*dbPath)
		if err != nil {
			return err
		}
	} else {
		store = journal.NewMemoryStore()
	}
	defer store.Close()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if !*verbose {
		logger = logger.Level(zerolog.WarnLevel)
	}

	// Simulated clock so scripts can step past cooldowns.
	now := time.Now()
	clock := func() time.Time { return now }

	l := ledger.NewMemoryLedger()
	g := cooldown.NewGuard(cooldown.WithClock(clock), cooldown.WithDuration(*cooldownFlag))
	settler := exchange.NewMemorySettler()
	ex := exchange.New(c, l, g, settler,
		exchange.WithJournal(store), exchange.WithClock(clock))

	ctx := context.Background()
	for i, op := range script {
		if err := runOp(ctx, ex, l, &now, op, logger); err != nil {
			return fmt.Errorf("op %d (%s): %w", i, op.Op, err)
		}
	}

	summary, err := journal.Summarize(ctx, store)
	if err != nil {
		return err
	}
	reserve, err := ex.Reserve()
	if err != nil {
		return err
	}

	fmt.Printf("operations: %d (%d buys, %d sells, %d transfers)\n",
		summary.Entries, summary.Buys, summary.Sells, summary.Transfers)
	fmt.Printf("value in:   %s\n", summary.ValueIn.Dec())
	fmt.Printf("value out:  %s\n", summary.ValueOut.Dec())
	fmt.Printf("supply:     %s\n", l.TotalSupply().Dec())
	fmt.Printf("reserve:    %s\n", reserve.Dec())
	return nil
}

func runOp(ctx context.Context, ex *exchange.Exchange, l *ledger.MemoryLedger, now *time.Time, op scriptOp, logger zerolog.Logger) error {
	switch op.Op {
	case "wait":
		d, err := time.ParseDuration(op.Wait)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		*now = now.Add(d)
		logger.Info().Dur("duration", d).Msg("wait")
		return nil

	case "buy":
		amount, err := parseUint(op.Amount, "amount")
		if err != nil {
			return err
		}
		value, err := parseUint(op.Value, "value")
		if err != nil {
			return err
		}
		receipt, err := ex.Buy(ctx, op.Account, amount, value)
		if err != nil {
			return err
		}
		logger.Info().Str("account", op.Account).Str("amount", amount.Dec()).
			Str("cost", receipt.Cost.Dec()).Str("change", receipt.Change.Dec()).Msg("buy")
		return nil

	case "sell":
		amount, err := parseUint(op.Amount, "amount")
		if err != nil {
			return err
		}
		receipt, err := ex.Sell(ctx, op.Account, amount)
		if err != nil {
			return err
		}
		logger.Info().Str("account", op.Account).Str("amount", amount.Dec()).
			Str("payout", receipt.Payout.Dec()).Msg("sell")
		return nil

	case "transfer":
		amount, err := parseUint(op.Amount, "amount")
		if err != nil {
			return err
		}
		if err := ex.Transfer(ctx, op.From, op.To, amount); err != nil {
			return err
		}
		logger.Info().Str("from", op.From).Str("to", op.To).
			Str("amount", amount.Dec()).Msg("transfer")
		return nil

	case "transfer-from":
		amount, err := parseUint(op.Amount, "amount")
		if err != nil {
			return err
		}
		if err := ex.TransferFrom(ctx, op.Spender, op.From, op.To, amount); err != nil {
			return err
		}
		logger.Info().Str("spender", op.Spender).Str("from", op.From).
			Str("to", op.To).Str("amount", amount.Dec()).Msg("transfer-from")
		return nil

	case "approve":
		amount, err := parseUint(op.Amount, "amount")
		if err != nil {
			return err
		}
		if err := l.Approve(op.From, op.Spender, amount); err != nil {
			return err
		}
		logger.Info().Str("owner", op.From).Str("spender", op.Spender).
			Str("amount", amount.Dec()).Msg("approve")
		return nil

	default:
		return fmt.Errorf("unknown op: %s", op.Op)
	}
}
