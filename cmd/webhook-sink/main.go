// Command webhook-sink is a single-endpoint receiver for generated user
// events. It acknowledges immediately and hands the event to an async store
// hook; it shares nothing with the export pipeline beyond the repo.
package main

import (
	"encoding/json"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/knowthefacts/quality-export/pkg/logging"
)

func main() {
	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		Output: os.Stderr,
	})

	sink := newSink(logging.NewLogger("webhook-sink"))

	addr := ":" + getEnv("PORT", "8080")
	logger.Info().Str("addr", addr).Msg("Starting webhook sink")

	if err := http.ListenAndServe(addr, sink.router()); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

type sink struct {
	logger zerolog.Logger
}

func newSink(logger zerolog.Logger) *sink {
	return &sink{logger: logger}
}

func (s *sink) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/v1/gen/user", s.receiveEvent).Methods(http.MethodPost)
	r.HandleFunc("/v1/gen/health", s.health).Methods(http.MethodGet)
	return r
}

// receiveEvent accepts one JSON event and acknowledges before storage
// completes; storeEvent runs asynchronously.
func (s *sink) receiveEvent(w http.ResponseWriter, r *http.Request) {
	var event map[string]any
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, `{"message":"invalid event"}`, http.StatusBadRequest)
		return
	}

	go s.storeEvent(event)

	writeJSON(w, http.StatusOK, map[string]string{"message": "stored successfully"})
}

func (s *sink) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// storeEvent is the async storage hook. Events are logged until a durable
// backend is attached.
func (s *sink) storeEvent(event map[string]any) {
	s.logger.Info().Int("fields", len(event)).Msg("Received event")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
