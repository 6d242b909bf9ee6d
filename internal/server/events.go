package server

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/isoctl/internal/protocol"
	"github.com/danmuck/isoctl/internal/service"
)

func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			// Authn/authz stays the transport's concern; the origin
			// list only fences browser clients.
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if origin == allowed {
					return true
				}
			}
			return false
		},
	}
}

// handleEvents upgrades to a websocket and attaches it as an event
// observer. Query param "isolate" scopes the subscription; absent means
// root scope. The connection stays attached until the peer goes away.
func (s *Server) handleEvents(c *gin.Context) {
	scope := c.Query("isolate")

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("event stream upgrade failed")
		return
	}

	sink := &wsSink{conn: conn}
	detach := s.notifier.Attach(scope, sink)
	log.Info().Str("scope", scopeLabel(scope)).Str("peer", conn.RemoteAddr().String()).
		Msg("event observer attached")

	// Drain the read side to notice the peer closing; observers never
	// send anything meaningful upstream.
	go func() {
		defer detach()
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				log.Debug().Err(err).Msg("event observer detached")
				return
			}
		}
	}()
}

func scopeLabel(scope string) string {
	if scope == service.RootScope {
		return "root"
	}
	return scope
}

// wsSink serializes one event per websocket text message. Writes are
// already serialized per sink by the notifier's worker, but the mutex
// also covers close racing a late send.
type wsSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsSink) Send(ev protocol.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(ev)
}
