package main

import (
	"os"

	"github.com/trogers1052/trade-ledger-service/cmd/ledgerd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
