package main

import (
	"os"

	"github.com/forgeline/forgeline/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
