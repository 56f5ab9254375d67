package main

import (
	"fmt"
	"os"

	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
