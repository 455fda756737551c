package main

import (
	"context"
	"fmt"
	"os"

	"finset/internal/cli"
)

func main() {
	if err := cli.Execute(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "finset: %v\n", err)
		os.Exit(cli.ExitCode(err))
	}
}
