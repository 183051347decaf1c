package mcp

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStdioTransport_SendFraming(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStdioTransport(strings.NewReader(""), &buf, nil)

	require.NoError(t, tr.Send(context.Background(), NewMCPRequest(1, MethodPing, nil)))

	header, body, ok := strings.Cut(buf.String(), "\r\n\r\n")
	require.True(t, ok)
	assert.Equal(t, "Content-Length: "+strconv.Itoa(len(body)), header)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"method":"ping"}`, body)
}

func TestStdioTransport_Roundtrip(t *testing.T) {
	var buf bytes.Buffer
	writer := NewStdioTransport(strings.NewReader(""), &buf, nil)
	ctx := context.Background()

	require.NoError(t, writer.Send(ctx, NewMCPRequest(1, MethodToolsList, nil)))
	require.NoError(t, writer.Send(ctx, NewMCPResponse(2, map[string]any{"ok": true})))

	reader := NewStdioTransport(&buf, io.Discard, nil)
	first, err := reader.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, MethodToolsList, first.Method)

	second, err := reader.Receive(ctx)
	require.NoError(t, err)
	assert.True(t, second.IsResponse())
	assert.Equal(t, map[string]any{"ok": true}, second.Result)

	_, err = reader.Receive(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestStdioTransport_ReceiveHeaders(t *testing.T) {
	body := `{"jsonrpc":"2.0","method":"ping","id":3}`
	tests := []struct {
		name  string
		input string
	}{
		{"canonical", "Content-Length: " + strconv.Itoa(len(body)) + "\r\n\r\n" + body},
		{"lower case", "content-length: " + strconv.Itoa(len(body)) + "\r\n\r\n" + body},
		{"bare newlines", "Content-Length: " + strconv.Itoa(len(body)) + "\n\n" + body},
		{"extra header", "Content-Type: application/json\r\nContent-Length: " + strconv.Itoa(len(body)) + "\r\n\r\n" + body},
		{"leading blank line", "\r\nContent-Length: " + strconv.Itoa(len(body)) + "\r\n\r\n" + body},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewStdioTransport(strings.NewReader(tt.input), io.Discard, nil)
			msg, err := tr.Receive(context.Background())
			require.NoError(t, err)
			assert.Equal(t, MethodPing, msg.Method)
		})
	}
}

func TestStdioTransport_ReceiveErrors(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantParse bool
	}{
		{name: "malformed header", input: "garbage\r\n\r\n"},
		{name: "bad length", input: "Content-Length: -4\r\n\r\n"},
		{name: "too large", input: "Content-Length: 999999999\r\n\r\n"},
		{name: "truncated body", input: "Content-Length: 10\r\n\r\n{}"},
		{name: "invalid json", input: "Content-Length: 3\r\n\r\n{x}", wantParse: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewStdioTransport(strings.NewReader(tt.input), io.Discard, nil)
			_, err := tr.Receive(context.Background())
			require.Error(t, err)
			var mcpErr *MCPError
			assert.Equal(t, tt.wantParse, errors.As(err, &mcpErr) && mcpErr.Code == ErrorCodeParseError)
		})
	}
}

func TestStdioTransport_CancelledContext(t *testing.T) {
	tr := NewStdioTransport(strings.NewReader(""), io.Discard, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, tr.Send(ctx, NewMCPRequest(1, MethodPing, nil)), context.Canceled)
	_, err := tr.Receive(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCommandTransport_Echo(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}
	tr, err := NewCommandTransport(context.Background(), "cat", nil, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, tr.Send(ctx, NewMCPRequest(5, MethodPing, nil)))

	msg, err := tr.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, MethodPing, msg.Method)
	id, ok := requestID(msg.ID)
	require.True(t, ok)
	assert.Equal(t, int64(5), id)

	assert.NoError(t, tr.Close())
	assert.NoError(t, tr.Close())
}

func TestCommandTransport_MissingBinary(t *testing.T) {
	_, err := NewCommandTransport(context.Background(), "agentgraph-no-such-binary", nil, nil)
	assert.Error(t, err)
}
