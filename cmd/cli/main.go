package main

import (
	"os"

	"github.com/hamed0406/uptimecore/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
