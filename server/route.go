package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// RegisterRoute wires the endpoint into a gorilla/mux router at path,
// upgrading every request with gorilla/websocket and driving it with
// Serve. This is the Go analogue of the original's
// WebsocketRPCEndpoint.register_route binding into a FastAPI APIRouter.
func (e *Endpoint) RegisterRoute(router *mux.Router, path string, upgrader websocket.Upgrader) *mux.Route {
	return router.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		ws := NewWSInboundSocket(w, r, upgrader)
		if err := e.Serve(r.Context(), ws); err != nil {
			e.log.Warnw("connection ended with error", "error", err, "remote", r.RemoteAddr)
		}
	})
}
