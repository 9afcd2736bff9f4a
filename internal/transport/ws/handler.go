package ws

import (
	"net/http"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/vedran77/textswap/internal/auth"
	"github.com/vedran77/textswap/internal/live"
	"github.com/vedran77/textswap/pkg/logger"
)

type Config struct {
	Hub      *Hub
	Live     *live.Hub
	Access   ConversationAccess
	Verifier auth.Verifier
	// OriginPatterns are passed to websocket.Accept. Empty allows any origin.
	OriginPatterns []string
}

// ServeWS returns an HTTP handler that upgrades to WebSocket.
// Auth is done via ?token=xxx query param (WebSocket can't send headers).
func ServeWS(cfg Config, log *logger.Logger) http.HandlerFunc {
	log = log.Named("ws")
	return func(w http.ResponseWriter, r *http.Request) {
		tokenStr := r.URL.Query().Get("token")
		if tokenStr == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}

		principal, err := cfg.Verifier.Verify(r.Context(), tokenStr)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		// Server read/write timeouts would otherwise outlive the upgrade.
		rc := http.NewResponseController(w)
		_ = rc.SetReadDeadline(time.Time{})
		_ = rc.SetWriteDeadline(time.Time{})

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns:     cfg.OriginPatterns,
			InsecureSkipVerify: len(cfg.OriginPatterns) == 0,
		})
		if err != nil {
			log.Warn("accept error", zap.Error(err))
			return
		}

		client := NewClient(cfg.Hub, conn, principal.UserID, cfg.Live, cfg.Access, log)
		if !cfg.Hub.Register(client) {
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		}

		// The request context lives as long as this handler, so the read
		// pump runs here rather than in its own goroutine.
		go client.WritePump(r.Context())
		client.ReadPump(r.Context())
	}
}
