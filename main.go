package main

import (
	"os"

	"github.com/slidesmith/slidesmith/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
