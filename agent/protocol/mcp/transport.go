package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// maxMessageSize 单条消息上限
const maxMessageSize = 16 << 20

// Transport MCP 传输层接口
type Transport interface {
	// Send 发送消息
	Send(ctx context.Context, msg *MCPMessage) error
	// Receive 接收消息（阻塞）
	Receive(ctx context.Context) (*MCPMessage, error)
	// Close 关闭传输
	Close() error
}

// ---------------------------------------------------------------------------
// StdioTransport 标准输入输出传输（Content-Length 头协议）
// ---------------------------------------------------------------------------

// StdioTransport 基于 bufio.Reader/io.Writer 的 stdio 传输
type StdioTransport struct {
	reader  *bufio.Reader
	writer  io.Writer
	closers []io.Closer
	writeMu sync.Mutex
	logger  *zap.Logger
}

// NewStdioTransport 创建 stdio 传输。reader/writer 若实现 io.Closer，Close 时一并关闭。
func NewStdioTransport(reader io.Reader, writer io.Writer, logger *zap.Logger) *StdioTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &StdioTransport{
		reader: bufio.NewReader(reader),
		writer: writer,
		logger: logger.With(zap.String("component", "mcp_stdio_transport")),
	}
	if c, ok := writer.(io.Closer); ok {
		t.closers = append(t.closers, c)
	}
	if c, ok := reader.(io.Closer); ok {
		t.closers = append(t.closers, c)
	}
	return t
}

// Send 发送消息（Content-Length 头 + JSON body）
func (t *StdioTransport) Send(ctx context.Context, msg *MCPMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(body))
	if _, err := io.WriteString(t.writer, header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := t.writer.Write(body); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}

// Receive 接收消息（读取 Content-Length 头 + JSON body）。
// 读取本身不可中断，ctx 仅在开始前检查；关闭传输以解除阻塞。
func (t *StdioTransport) Receive(ctx context.Context) (*MCPMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	contentLength := -1
	for {
		line, err := t.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if contentLength < 0 {
				// 消息之间的空行
				continue
			}
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("malformed header line %q", line)
		}
		if strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			n, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil || n < 0 {
				return nil, fmt.Errorf("invalid Content-Length %q", value)
			}
			contentLength = n
		}
	}
	if contentLength > maxMessageSize {
		return nil, fmt.Errorf("message of %d bytes exceeds limit", contentLength)
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(t.reader, body); err != nil {
		return nil, err
	}

	var msg MCPMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, &MCPError{Code: ErrorCodeParseError, Message: err.Error()}
	}
	return &msg, nil
}

// Close 关闭底层读写端
func (t *StdioTransport) Close() error {
	var errs []error
	for _, c := range t.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ---------------------------------------------------------------------------
// CommandTransport 子进程 stdio 传输
// ---------------------------------------------------------------------------

// CommandTransport 启动子进程并通过其 stdin/stdout 通信
type CommandTransport struct {
	*StdioTransport
	cmd    *exec.Cmd
	logger *zap.Logger
	once   sync.Once
}

// NewCommandTransport 启动 command 并返回连接到其 stdio 的传输。
// 子进程 stderr 转发到日志。
func NewCommandTransport(ctx context.Context, command string, args []string, logger *zap.Logger) (*CommandTransport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cmd := exec.CommandContext(ctx, command, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", command, err)
	}

	logger = logger.With(zap.String("component", "mcp_command_transport"), zap.String("command", command))
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			logger.Debug("tool server stderr", zap.String("line", scanner.Text()))
		}
	}()

	return &CommandTransport{
		StdioTransport: NewStdioTransport(stdout, stdin, logger),
		cmd:            cmd,
		logger:         logger,
	}, nil
}

// Close 关闭管道并等待子进程退出
func (t *CommandTransport) Close() error {
	var err error
	t.once.Do(func() {
		_ = t.StdioTransport.Close()
		if waitErr := t.cmd.Wait(); waitErr != nil {
			var exitErr *exec.ExitError
			if !errors.As(waitErr, &exitErr) {
				err = waitErr
			}
			t.logger.Debug("tool server exited", zap.Error(waitErr))
		}
	})
	return err
}
