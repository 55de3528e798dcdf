// Package logging configures the service's two diagnostic streams:
// every record as JSON on stdout for the log collector, and ERROR+
// records additionally batched into the system_logs table (PGHandler)
// for operational queries. The accountability trail is a different
// thing entirely and lives in internal/audit.
package logging

import (
	"log/slog"
	"os"
)

// Setup installs the stdout JSON handler as the process default. The
// Postgres fan-out is attached later in main, once the database is up.
func Setup() {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
}
