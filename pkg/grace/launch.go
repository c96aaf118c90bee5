package grace

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
)

func ExitOrLog(err error) {
	if err != nil && !errors.Is(err, context.Canceled) {
		if details, ok := Describe(err); ok {
			log.Fatalf("%v\n%s", err, details)
		}
		log.Fatal(err)
	}
}

// SetupSignalHandler returns a context cancelled on the first SIGINT or SIGTERM.
func SetupSignalHandler(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
