package observability

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const defaultShutdownTimeout = 5 * time.Second

// ShutdownFunc flushes and stops the installed providers.
type ShutdownFunc func(context.Context) error

type shutdownStep struct {
	name string
	stop func(context.Context) error
}

// NewShutdownFunc stops the tracer provider first, then the meter provider.
// Nil providers are skipped.
func NewShutdownFunc(tp *sdktrace.TracerProvider, mp *sdkmetric.MeterProvider) ShutdownFunc {
	var steps []shutdownStep
	if tp != nil {
		steps = append(steps, shutdownStep{name: "tracer provider", stop: tp.Shutdown})
	}
	if mp != nil {
		steps = append(steps, shutdownStep{name: "meter provider", stop: mp.Shutdown})
	}

	return func(ctx context.Context) error {
		shutdownCtx, cancel := withShutdownDeadline(ctx)
		defer cancel()

		var errs []error
		for _, step := range steps {
			if err := step.stop(shutdownCtx); err != nil {
				log.Printf("observability: failed to shutdown %s: %v", step.name, err)
				errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
			}
		}
		return errors.Join(errs...)
	}
}

func withShutdownDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, defaultShutdownTimeout)
}
