package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/curvemint/go-curvemint/journal"
)

func journalCmd(args []string) error {
	fs := flag.NewFlagSet("journal", flag.ExitOnError)
	verify := fs.Bool("verify", false, "Verify the hash chain")
	summarize := fs.Bool("summary", false, "Print aggregate statistics")
	dump := fs.Bool("dump", false, "Dump entries as JSON lines")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: curvemint journal [options] <trades.db>

Inspect a trade journal produced by 'curvemint trade --db'.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return fmt.Errorf("journal database required")
	}

	store, err := journal.NewSQLiteStore(fs.Arg(0))
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()

	if *verify {
		if err := journal.Verify(ctx, store); err != nil {
			return err
		}
		fmt.Println("hash chain intact")
	}

	if *dump {
		entries, err := store.Read(ctx, 0)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		for _, e := range entries {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
	}

	if *summarize || (!*verify && !*dump) {
		summary, err := journal.Summarize(ctx, store)
		if err != nil {
			return err
		}
		fmt.Printf("entries:    %d (%d buys, %d sells, %d transfers)\n",
			summary.Entries, summary.Buys, summary.Sells, summary.Transfers)
		fmt.Printf("value in:   %s\n", summary.ValueIn.Dec())
		fmt.Printf("value out:  %s\n", summary.ValueOut.Dec())
		fmt.Printf("supply:     %s\n", summary.FinalSupply.Dec())
		if summary.Entries > 0 {
			fmt.Printf("time range: %s to %s\n",
				summary.StartTime.Format("2006-01-02 15:04:05"),
				summary.EndTime.Format("2006-01-02 15:04:05"))
		}
	}
	return nil
}
