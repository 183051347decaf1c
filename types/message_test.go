package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToolResult_ToMessage(t *testing.T) {
	ok := ToolResult{ToolCallID: "call_1", Name: "add", Result: json.RawMessage(`3`)}
	msg := ok.ToMessage()
	assert.Equal(t, RoleTool, msg.Role)
	assert.Equal(t, "3", msg.Content)
	assert.Equal(t, "call_1", msg.ToolCallID)
	assert.False(t, ok.IsError())

	failed := ToolResult{ToolCallID: "call_2", Name: "add", Error: "boom"}
	assert.Equal(t, "Error: boom", failed.ToMessage().Content)
	assert.True(t, failed.IsError())
}

func TestMessage_HasToolCalls(t *testing.T) {
	msg := NewAssistantMessage("")
	assert.False(t, msg.HasToolCalls())

	msg = msg.WithToolCalls([]ToolCall{{ID: "1", Name: "search"}})
	assert.True(t, msg.HasToolCalls())
	assert.Equal(t, RoleAssistant, msg.Role)
}
