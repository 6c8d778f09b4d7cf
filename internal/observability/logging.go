package observability

import (
	"log/slog"

	"github.com/couchcryptid/geodata-etl/internal/config"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// installs it as the slog default.
func NewLogger(cfg *config.Config) *slog.Logger {
	return sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
}

// NameRepairReporter returns a normalizer failure callback that logs each
// unrepaired substring at Warn and counts it.
func NameRepairReporter(logger *slog.Logger, metrics *Metrics) func(raw, segment string) {
	return func(raw, segment string) {
		logger.Warn("province name repair failed", "raw", raw, "segment", segment)
		metrics.NameRepairFailures.Inc()
	}
}
