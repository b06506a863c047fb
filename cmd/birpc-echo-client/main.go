// Command birpc-echo-client dials a birpc server and calls its echo
// method once, demonstrating the client wrapper's reconnect-with-backoff
// lifecycle and the remote proxy's Call path.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/birpc-go/birpc"
	"github.com/birpc-go/birpc/client"
	"github.com/birpc-go/birpc/methods"
)

func main() {
	uri := flag.String("uri", "ws://localhost:8765/ws", "server URI")
	text := flag.String("text", "hello from birpc-echo-client", "text to echo")
	timeout := flag.Duration("timeout", 5*time.Second, "per-call response timeout")
	flag.Parse()

	ctx := context.Background()
	c := client.New(*uri, client.WithDefaultTimeout(*timeout))

	err := c.Run(ctx, func(ctx context.Context, c *client.Client) error {
		resp, err := c.Other().Call(ctx, "echo", methods.EchoArgs{Text: *text}, 0)
		if err != nil {
			return err
		}
		var result string
		if err := birpc.UnmarshalResult(resp, &result); err != nil {
			return err
		}
		log.Printf("echo(%q) -> %q (result_type=%s)", *text, result, resp.ResultType)
		return nil
	})
	if err != nil {
		log.Fatalf("client run failed: %v", err)
	}
}
