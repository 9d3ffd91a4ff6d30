package main

import (
	"context"
	"os"

	"trafficwatch/internal/cli"
)

// main hands off to the command tree. Wiring lives in internal/app and
// business logic in the internal/violation packages.
func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
