package metrics

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// StatsHandler serves the collector snapshot as JSON. The status subcommand
// reads it from a running daemon.
func StatsHandler(collector *Collector) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(collector.Stats()); err != nil {
			log.Error().Err(err).Msg("failed to write stats response")
		}
	}
}
