package observability

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// FlushTelemetry flushes telemetry buffers before process exit: pending spans first, then logs.
// Call during graceful shutdown after in-flight requests have drained. shutdownTracing may be nil.
func FlushTelemetry(ctx context.Context, logger *zap.Logger, shutdownTracing func(context.Context) error) error {
	if shutdownTracing != nil {
		if err := shutdownTracing(ctx); err != nil {
			return fmt.Errorf("flush spans: %w", err)
		}
	}
	if logger != nil {
		if err := logger.Sync(); err != nil {
			return fmt.Errorf("flush logs: %w", err)
		}
	}
	return nil
}
