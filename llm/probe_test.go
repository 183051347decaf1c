package llm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentgraph/llm"
	"github.com/BaSui01/agentgraph/testutil"
	"github.com/BaSui01/agentgraph/testutil/mocks"
	"github.com/BaSui01/agentgraph/types"
)

func TestProbe(t *testing.T) {
	tests := []struct {
		name     string
		provider *mocks.MockProvider
		wantErr  bool
	}{
		{name: "non-empty reply", provider: mocks.NewSuccessProvider("Hi!")},
		{name: "empty reply", provider: mocks.NewSuccessProvider(""), wantErr: true},
		{name: "whitespace reply", provider: mocks.NewSuccessProvider("  \n"), wantErr: true},
		{name: "provider error", provider: mocks.NewErrorProvider(errors.New("connection refused")), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := llm.Probe(context.Background(), llm.NewChatModel(tt.provider))
			if !tt.wantErr {
				require.NoError(t, err)
			} else {
				testutil.AssertErrorCode(t, err, types.ErrProviderUnavailable)
			}

			call := tt.provider.GetLastCall()
			require.NotNil(t, call)
			require.Len(t, call.Request.Messages, 1)
			assert.Equal(t, llm.ProbeMessage, call.Request.Messages[0].Content)
		})
	}
}

func TestProbe_IgnoresBoundTools(t *testing.T) {
	provider := mocks.NewSuccessProvider("ok")
	m := llm.NewChatModel(provider).WithTools(types.ToolSchema{Name: "t"})

	require.NoError(t, llm.Probe(context.Background(), m))
	assert.Empty(t, provider.GetLastCall().Request.Tools)
}

func TestFirstChoice(t *testing.T) {
	_, err := llm.FirstChoice(nil)
	assert.Error(t, err)

	_, err = llm.FirstChoice(&llm.ChatResponse{})
	assert.ErrorContains(t, err, "empty choices")

	choice, err := llm.FirstChoice(&llm.ChatResponse{Choices: []llm.ChatChoice{
		{Message: types.Message{Content: "first"}},
		{Message: types.Message{Content: "second"}},
	}})
	require.NoError(t, err)
	assert.Equal(t, "first", choice.Message.Content)
	assert.Equal(t, "", llm.Content(nil))
}

func TestProbe_FailsOnceProviderStopsAnswering(t *testing.T) {
	provider := mocks.NewSuccessProvider("Hi!").WithFailAfter(1)
	model := llm.NewChatModel(provider)

	require.NoError(t, llm.Probe(context.Background(), model))
	err := llm.Probe(context.Background(), model)
	testutil.AssertErrorCode(t, err, types.ErrProviderUnavailable)
	assert.Equal(t, 2, provider.GetCallCount())
}
