// Package mcptool implements dispatch.Dispatcher by executing intents as
// Model Context Protocol tool calls via the official MCP Go SDK
// (github.com/modelcontextprotocol/go-sdk).
//
// Each intent type maps to the MCP tool of the same name on the connected
// server; the intent's parameters become the tool's arguments. This lets the
// assistant's command surface live in an ordinary MCP server (stdio
// subprocess or streamable-HTTP endpoint) that can be developed and tested
// independently of the speech core.
package mcptool

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mliane/voxpipe/pkg/provider/dispatch"
	"github.com/mliane/voxpipe/pkg/provider/intent"
)

// Dispatcher implements [dispatch.Dispatcher] over a single MCP server
// connection. All methods are safe for concurrent use.
type Dispatcher struct {
	mu      sync.Mutex
	client  *mcpsdk.Client
	session *mcpsdk.ClientSession
	closed  bool
}

var _ dispatch.Dispatcher = (*Dispatcher)(nil)

// NewStdio launches command as an MCP server subprocess and connects to it
// over stdio. command is split on spaces into executable + args.
func NewStdio(ctx context.Context, command string) (*Dispatcher, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, fmt.Errorf("mcptool: command must not be empty")
	}
	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	return connect(ctx, &mcpsdk.CommandTransport{Command: cmd})
}

// NewHTTP connects to an MCP server at the given streamable-HTTP endpoint.
func NewHTTP(ctx context.Context, endpoint string) (*Dispatcher, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("mcptool: endpoint must not be empty")
	}
	return connect(ctx, &mcpsdk.StreamableClientTransport{Endpoint: endpoint})
}

func connect(ctx context.Context, transport mcpsdk.Transport) (*Dispatcher, error) {
	client := mcpsdk.NewClient(
		&mcpsdk.Implementation{Name: "voxpipe-dispatcher", Version: "1.0.0"},
		nil,
	)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcptool: connect: %w", err)
	}
	return &Dispatcher{client: client, session: session}, nil
}

// Dispatch calls the MCP tool named after the intent type, passing the
// intent's parameters as tool arguments. The concatenated text content of
// the tool result becomes the completion message.
func (d *Dispatcher) Dispatch(ctx context.Context, it intent.Intent) (dispatch.CommandResult, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return dispatch.CommandResult{}, fmt.Errorf("mcptool: dispatcher is closed")
	}
	session := d.session
	d.mu.Unlock()

	args := make(map[string]any, len(it.Parameters))
	for k, v := range it.Parameters {
		args[k] = v
	}

	result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      it.Type,
		Arguments: args,
	})
	if err != nil {
		return dispatch.CommandResult{}, fmt.Errorf("mcptool: call tool %q: %w", it.Type, err)
	}

	var sb strings.Builder
	for _, c := range result.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}

	return dispatch.CommandResult{
		Success: !result.IsError,
		Message: sb.String(),
	}, nil
}

// Close terminates the MCP session. Safe to call multiple times.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.session.Close()
}
