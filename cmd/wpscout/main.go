// Command wpscout scans WordPress sites for common security weaknesses.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/waftester/wpscout/pkg/cli"
	"github.com/waftester/wpscout/pkg/duration"
)

func main() {
	ctx, cancel := cli.SignalContext(context.Background(), duration.SignalGrace, os.Stderr)
	err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx)
	cancel()

	if err != nil {
		var ee *cli.ExitError
		if !errors.As(err, &ee) || !ee.Silent {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
	os.Exit(cli.ExitCode(err))
}
