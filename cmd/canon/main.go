package main

import (
	"os"

	"github.com/wonny/pricecanon/cmd/canon/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
