// Command usbverifier manages the verification rules of the USB verifier and
// exports the memory images and HDL sources the FPGA design is built from.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/multierr"
)

var exitFunc = os.Exit

// main runs the command tree and exits with the status returned by cli.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	exitFunc(code)
}

func cli(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	a := &app{}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	// post-run hooks are skipped when a command fails
	err = multierr.Append(err, a.close())
	if err != nil {
		if _, writeErr := fmt.Fprintf(stderr, "Error: %v\n", err); writeErr != nil {
			return 1
		}
		return 1
	}
	return 0
}
