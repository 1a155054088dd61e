package graceful

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Context returns a context canceled on SIGINT or SIGTERM. Signal delivery is
// restored to default once the context ends.
func Context(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Printf("Received %s, starting graceful shutdown...", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// Closer is one shutdown step.
type Closer func(ctx context.Context) error

// Shutdown runs closers in order under a shared deadline and joins their
// errors. Later closers still run when an earlier one fails or the deadline
// passes.
func Shutdown(timeout time.Duration, closers ...Closer) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	for _, c := range closers {
		if err := c(ctx); err != nil {
			log.Printf("Shutdown step failed: %v", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
