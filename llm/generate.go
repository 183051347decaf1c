package llm

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/internal/ctxkeys"
	"github.com/BaSui01/agentgraph/types"
)

// GenerationParams are the sampling parameters applied to every request of a
// ChatModel.
type GenerationParams struct {
	Temperature float32
	MaxTokens   int
	TopP        float32
	Stop        []string
}

// ChatModel binds a Provider to a model name, generation parameters and an
// optional tool set. It is immutable: WithTools returns a new value.
type ChatModel struct {
	provider Provider
	model    string
	params   GenerationParams
	tools    []types.ToolSchema
	choice   string
	metadata map[string]string
	timeout  time.Duration
	logger   *zap.Logger
}

// ChatModelOption configures a ChatModel.
type ChatModelOption func(*ChatModel)

// WithModel sets the model name sent with each request.
func WithModel(model string) ChatModelOption {
	return func(m *ChatModel) { m.model = model }
}

// WithParams sets the generation parameters.
func WithParams(p GenerationParams) ChatModelOption {
	return func(m *ChatModel) { m.params = p }
}

// WithToolChoice sets how the model may use bound tools: "auto", "none" or a
// tool name. Ignored when no tools are bound.
func WithToolChoice(choice string) ChatModelOption {
	return func(m *ChatModel) { m.choice = choice }
}

// WithMetadata attaches a provider hint to every request, e.g.
// reasoning_mode=thinking for deepseek.
func WithMetadata(key, value string) ChatModelOption {
	return func(m *ChatModel) {
		if m.metadata == nil {
			m.metadata = make(map[string]string)
		}
		m.metadata[key] = value
	}
}

// WithTimeout bounds each request. Zero means no bound beyond ctx.
func WithTimeout(d time.Duration) ChatModelOption {
	return func(m *ChatModel) { m.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ChatModelOption {
	return func(m *ChatModel) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMiddleware wraps the provider, e.g. for metrics. Middlewares apply in
// the order given; the last one is outermost.
func WithMiddleware(mw func(Provider) Provider) ChatModelOption {
	return func(m *ChatModel) {
		if mw != nil {
			m.provider = mw(m.provider)
		}
	}
}

// NewChatModel creates a ChatModel over provider.
func NewChatModel(provider Provider, opts ...ChatModelOption) *ChatModel {
	m := &ChatModel{provider: provider, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(zap.String("component", "chat_model"), zap.String("provider", provider.Name()))
	return m
}

// Provider returns the underlying provider.
func (m *ChatModel) Provider() Provider { return m.provider }

// Model returns the configured model name, which may be empty.
func (m *ChatModel) Model() string { return m.model }

// Tools returns the bound tool descriptors.
func (m *ChatModel) Tools() []types.ToolSchema { return m.tools }

// WithTools returns a copy of m bound to tools.
func (m *ChatModel) WithTools(tools ...types.ToolSchema) *ChatModel {
	cp := *m
	cp.tools = append([]types.ToolSchema(nil), tools...)
	return &cp
}

// GenerateResult is the outcome of GenerateAsync.
type GenerateResult struct {
	Response *ChatResponse
	Err      error
}

// ContextWithModel overrides the model name of every ChatModel request made
// with the returned context.
func ContextWithModel(ctx context.Context, model string) context.Context {
	return ctxkeys.WithLLMModel(ctx, model)
}

// Metadata keys filled from the calling context.
const (
	MetadataRunID = "run_id"
	MetadataNode  = "node"
)

func (m *ChatModel) request(ctx context.Context, messages []types.Message) (*ChatRequest, error) {
	if len(messages) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "messages must not be empty").WithProvider(m.provider.Name())
	}
	if len(m.tools) > 0 && !m.provider.SupportsNativeFunctionCalling() {
		return nil, types.Errorf(types.ErrInvalidRequest, "provider %s does not support tool calling", m.provider.Name()).WithProvider(m.provider.Name())
	}
	req := &ChatRequest{
		Model:       m.model,
		Messages:    messages,
		MaxTokens:   m.params.MaxTokens,
		Temperature: m.params.Temperature,
		TopP:        m.params.TopP,
		Stop:        m.params.Stop,
		Tools:       m.tools,
		Timeout:     m.timeout,
	}
	if len(m.tools) > 0 {
		req.ToolChoice = m.choice
	}

	// context 中的模型覆盖优先于绑定的模型
	if model, ok := ctxkeys.LLMModel(ctx); ok {
		req.Model = model
	}
	req.TraceID, _ = ctxkeys.TraceID(ctx)

	md := make(map[string]string, len(m.metadata)+2)
	for k, v := range m.metadata {
		md[k] = v
	}
	if runID, ok := ctxkeys.RunID(ctx); ok {
		md[MetadataRunID] = runID
	}
	if node, ok := ctxkeys.Node(ctx); ok {
		md[MetadataNode] = node
	}
	if len(md) > 0 {
		req.Metadata = md
	}
	return req, nil
}

// Generate sends one chat turn and waits for the complete response.
func (m *ChatModel) Generate(ctx context.Context, messages []types.Message) (*ChatResponse, error) {
	req, err := m.request(ctx, messages)
	if err != nil {
		return nil, err
	}
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := m.provider.Completion(ctx, req)
	if err != nil {
		m.logger.Error("completion failed", zap.Duration("duration", time.Since(start)), zap.Error(err))
		return nil, err
	}
	m.logger.Debug("completion finished",
		zap.String("model", resp.Model),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Duration("duration", time.Since(start)),
	)
	return resp, nil
}

// GenerateAsync runs Generate in a new goroutine. The channel receives exactly
// one result and is then closed.
func (m *ChatModel) GenerateAsync(ctx context.Context, messages []types.Message) <-chan GenerateResult {
	out := make(chan GenerateResult, 1)
	go func() {
		defer close(out)
		resp, err := m.Generate(ctx, messages)
		out <- GenerateResult{Response: resp, Err: err}
	}()
	return out
}

// GenerateStream sends one chat turn and returns incremental chunks. The
// request timeout, if any, covers the whole stream.
func (m *ChatModel) GenerateStream(ctx context.Context, messages []types.Message) (<-chan StreamChunk, error) {
	req, err := m.request(ctx, messages)
	if err != nil {
		return nil, err
	}
	cancel := context.CancelFunc(func() {})
	if m.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
	}
	in, err := m.provider.Stream(ctx, req)
	if err != nil {
		cancel()
		m.logger.Error("stream failed", zap.Error(err))
		return nil, err
	}

	out := make(chan StreamChunk)
	go func() {
		defer cancel()
		defer close(out)
		for chunk := range in {
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Accumulate drains a stream into a single assistant message. A tool-call
// fragment carrying an ID starts a new call; fragments without one extend the
// arguments of the latest call. The first chunk error is returned.
func Accumulate(chunks <-chan StreamChunk) (types.Message, error) {
	msg := types.Message{Role: types.RoleAssistant}
	var content []byte
	for chunk := range chunks {
		if chunk.Err != nil {
			// 继续排空通道，避免生产者阻塞
			for range chunks {
			}
			return msg, chunk.Err
		}
		content = append(content, chunk.Delta.Content...)
		for _, tc := range chunk.Delta.ToolCalls {
			if tc.ID != "" || len(msg.ToolCalls) == 0 {
				msg.ToolCalls = append(msg.ToolCalls, types.ToolCall{
					ID:        tc.ID,
					Name:      tc.Name,
					Arguments: append([]byte(nil), tc.Arguments...),
				})
				continue
			}
			last := &msg.ToolCalls[len(msg.ToolCalls)-1]
			if last.Name == "" {
				last.Name = tc.Name
			}
			last.Arguments = append(last.Arguments, tc.Arguments...)
		}
	}
	msg.Content = string(content)
	return msg, nil
}
