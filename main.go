package main

import (
	"os"

	"github.com/serroba/online-docs/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
