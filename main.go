package main

import (
	"os"

	"github.com/vimarsh-ai/vimarsh/cli"
)

func main() {
	if err := cli.RootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
