package llm

import (
	"context"
	"strings"

	"github.com/BaSui01/agentgraph/types"
)

// ProbeMessage is the trivial prompt sent by Probe.
const ProbeMessage = "Hello"

// Probe checks that the model answers a trivial prompt with non-empty content.
// Any failure, including an empty reply, is reported as ErrProviderUnavailable
// with the underlying error as cause.
func Probe(ctx context.Context, m *ChatModel) error {
	resp, err := m.WithTools().Generate(ctx, []types.Message{types.NewUserMessage(ProbeMessage)})
	if err != nil {
		return types.Errorf(types.ErrProviderUnavailable, "model probe failed for provider %s", m.provider.Name()).
			WithCause(err).
			WithProvider(m.provider.Name())
	}
	if strings.TrimSpace(Content(resp)) == "" {
		return types.Errorf(types.ErrProviderUnavailable, "model probe got an empty reply from provider %s", m.provider.Name()).
			WithCause(types.NewError(types.ErrEmptyResponse, "empty completion")).
			WithProvider(m.provider.Name())
	}
	return nil
}
