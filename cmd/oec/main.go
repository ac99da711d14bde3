package main

import (
	"os"
)

// main is the entry point for the OEC staking dashboard backend.
func main() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
