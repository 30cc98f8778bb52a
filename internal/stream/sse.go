package stream

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/kjannette/stonks-backend/internal/watchlist"
)

// ServeSSE streams snapshots as "data: <json>" events until the client
// goes away.
func (p *Poller) ServeSSE(w http.ResponseWriter, r *http.Request, userID int64) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	err := p.Run(r.Context(), userID, func(rows []watchlist.Row) error {
		data, err := json.Marshal(rows)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil && r.Context().Err() == nil {
		p.log.Warn().Err(err).Int64("user", userID).Msg("sse stream ended")
	}
}
