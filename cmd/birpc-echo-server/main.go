// Command birpc-echo-server runs a minimal birpc server exposing the
// echo and get_process_details utility methods over WebSocket RPC,
// routed through gorilla/mux. It is the Go analogue of wiring
// WebsocketRPCEndpoint.register_route into a FastAPI app.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/birpc-go/birpc"
	"github.com/birpc-go/birpc/methods"
	"github.com/birpc-go/birpc/server"
)

func main() {
	addr := flag.String("addr", ":8765", "listen address")
	path := flag.String("path", "/ws", "WebSocket RPC route")
	syncID := flag.Bool("sync-channel-id", false, "learn the client's channel id on connect")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := birpc.NewRegistry()
	if err := methods.RegisterUtility(registry); err != nil {
		log.Fatalf("registering utility methods: %v", err)
	}

	endpoint := server.NewEndpoint(
		server.WithRegistry(registry),
		server.WithSyncChannelID(*syncID),
		server.WithOnConnect(func(ctx context.Context, ch *birpc.Channel) error {
			log.Printf("channel %s connected", ch.ID())
			return nil
		}),
		server.WithOnDisconnect(func(ctx context.Context, ch *birpc.Channel) error {
			log.Printf("channel %s disconnected", ch.ID())
			return nil
		}),
	)

	router := mux.NewRouter()
	endpoint.RegisterRoute(router, *path, websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	})

	httpServer := &http.Server{Addr: *addr, Handler: router}
	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	log.Printf("listening on %s%s", *addr, *path)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}
