package server

import (
	"log/slog"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/playperu/fieldquest/internal/clock"
)

// ClockFrame is one message on the clock stream.
type ClockFrame struct {
	HasGame bool        `json:"hasGame"`
	Clock   clock.State `json:"clock"`
}

// handleClock streams the derived mission clock over a websocket, one
// frame per interval. Each frame is derived from the stored timestamps.
func handleClock(logger *slog.Logger, interval time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := controller(r)

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			logger.Error("websocket accept failed", "error", err)
			return
		}
		defer conn.CloseNow()

		// Clients never send; CloseRead cancels ctx when they hang up.
		ctx := conn.CloseRead(r.Context())

		tick := time.NewTicker(interval)
		defer tick.Stop()

		for {
			st, ok := c.Clock(time.Now())
			if err := wsjson.Write(ctx, conn, ClockFrame{HasGame: ok, Clock: st}); err != nil {
				logger.Debug("clock stream ended", "error", err)
				return
			}

			select {
			case <-ctx.Done():
				conn.Close(websocket.StatusNormalClosure, "")
				return
			case <-tick.C:
			}
		}
	}
}
