// Package status serves the receiver state and metrics over HTTP.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Hundemeier/go-sacn/sacn"
)

// Source is the read-only view of a receiver.
type Source interface {
	Universe() uint16
	LastReceived() time.Time
	Stale(after time.Duration) bool
	Latest() sacn.DMXFrame
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Universe     uint16     `json:"universe"`
	Stale        bool       `json:"stale"`
	LastReceived *time.Time `json:"last_received,omitempty"`
}

// FrameResponse is returned by GET /frame.
type FrameResponse struct {
	Universe  uint16 `json:"universe"`
	StartCode byte   `json:"start_code"`
	Channels  []int  `json:"channels"`
}

// NewRouter builds the routes:
//
//	GET /status   liveness of the source
//	GET /frame    last accepted frame
//	GET /metrics  prometheus metrics from gatherer
func NewRouter(src Source, staleAfter time.Duration, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			Universe: src.Universe(),
			Stale:    src.Stale(staleAfter),
		}
		if last := src.LastReceived(); !last.IsZero() {
			resp.LastReceived = &last
		}
		writeJSON(w, resp)
	})
	r.Get("/frame", func(w http.ResponseWriter, _ *http.Request) {
		frame := src.Latest()
		channels := make([]int, sacn.ChannelCount)
		for i := range channels {
			channels[i] = int(frame.Channel(i + 1))
		}
		writeJSON(w, FrameResponse{
			Universe:  src.Universe(),
			StartCode: frame.StartCode(),
			Channels:  channels,
		})
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// Serve runs an HTTP server on addr until ctx is done.
func Serve(ctx context.Context, addr string, handler http.Handler, log zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("status server listening")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
