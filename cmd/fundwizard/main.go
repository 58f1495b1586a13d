package main

import (
	"os"

	"fundwizard/cmd/fundwizard/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
