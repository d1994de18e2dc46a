package main

import (
	"os"

	"github.com/couchcryptid/climate-series-service/internal/cli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
