package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "quote":
		if err := quote(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "trade":
		if err := trade(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "journal":
		if err := journalCmd(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "help", "-h", "--help":
		printUsage()
	case "version", "-v", "--version":
		fmt.Println("curvemint version 1.0.0")
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`curvemint - bonding curve issuance and redemption engine

Usage:
  curvemint <command> [options]

Commands:
  quote      Price a buy or sell against the curve
  trade      Execute a script of operations against a fresh engine
  journal    Inspect, verify, or summarize a trade journal
  help       Show this help message
  version    Show version information

Examples:
  # Price buying 2 units at supply 0
  curvemint quote --amount 2

  # Run a trade script, journaling to SQLite
  curvemint trade --db trades.db script.json

  # Verify a journal's hash chain
  curvemint journal --verify trades.db

For command-specific help, run:
  curvemint <command> --help`)
}
