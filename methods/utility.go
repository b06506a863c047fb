// Package methods provides a small set of ready-made handlers that are
// useful on almost any channel, grounded in the original's
// RpcUtilityMethods: an echo method for smoke-testing round trips, and a
// process-details method exposing the server's pid/args/working
// directory to a connected peer.
package methods

import (
	"context"
	"os"

	"github.com/birpc-go/birpc"
)

// ProcessDetails mirrors the original's pydantic ProcessDetails model.
type ProcessDetails struct {
	PID        int      `json:"pid"`
	Cmd        []string `json:"cmd"`
	WorkingDir string   `json:"workingdir"`
}

// EchoArgs is the argument shape for Echo.
type EchoArgs struct {
	Text string `json:"text"`
}

// RegisterUtility installs "echo" and "get_process_details" on reg.
func RegisterUtility(reg *birpc.Registry) error {
	if err := birpc.RegisterTyped(reg, "echo", echo, birpc.WithResultTypeName("str")); err != nil {
		return err
	}
	return birpc.RegisterTyped(reg, "get_process_details", getProcessDetails)
}

func echo(ctx context.Context, args EchoArgs) (string, error) {
	return args.Text, nil
}

type noArgs struct{}

func getProcessDetails(ctx context.Context, _ noArgs) (ProcessDetails, error) {
	wd, err := os.Getwd()
	if err != nil {
		wd = ""
	}
	return ProcessDetails{
		PID:        os.Getpid(),
		Cmd:        os.Args,
		WorkingDir: wd,
	}, nil
}
