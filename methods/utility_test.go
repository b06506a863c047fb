package methods_test

import (
	"context"
	"testing"
	"time"

	"github.com/birpc-go/birpc"
	"github.com/birpc-go/birpc/methods"
)

func TestRegisterUtilityEcho(t *testing.T) {
	reg := birpc.NewRegistry()
	if err := methods.RegisterUtility(reg); err != nil {
		t.Fatalf("register utility: %v", err)
	}

	clientSocket, serverSocket := newLoopback()
	client := birpc.NewChannel(birpc.NewRegistry(), clientSocket)
	server := birpc.NewChannel(reg, serverSocket)
	stop := pump(client, clientSocket, server, serverSocket)
	defer stop()

	resp, err := client.Call(context.Background(), "echo", methods.EchoArgs{Text: "ping"}, 2*time.Second)
	if err != nil {
		t.Fatalf("call echo: %v", err)
	}
	var result string
	if err := birpc.UnmarshalResult(resp, &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result != "ping" {
		t.Fatalf("got %q, want %q", result, "ping")
	}
	if resp.ResultType != "str" {
		t.Fatalf("got result_type %q, want %q", resp.ResultType, "str")
	}
}

func TestRegisterUtilityGetProcessDetails(t *testing.T) {
	reg := birpc.NewRegistry()
	if err := methods.RegisterUtility(reg); err != nil {
		t.Fatalf("register utility: %v", err)
	}

	clientSocket, serverSocket := newLoopback()
	client := birpc.NewChannel(birpc.NewRegistry(), clientSocket)
	server := birpc.NewChannel(reg, serverSocket)
	stop := pump(client, clientSocket, server, serverSocket)
	defer stop()

	resp, err := client.Call(context.Background(), "get_process_details", nil, 2*time.Second)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	var details methods.ProcessDetails
	if err := birpc.UnmarshalResult(resp, &details); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if details.PID <= 0 {
		t.Fatalf("got pid %d, want a positive pid", details.PID)
	}
	if len(details.Cmd) == 0 {
		t.Fatal("expected a non-empty cmd slice")
	}
}
