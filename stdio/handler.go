package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/ggoodman/cms-mcp-server/internal/jsonrpc"
	"github.com/ggoodman/cms-mcp-server/internal/logctx"
	"github.com/ggoodman/cms-mcp-server/mcp"
	"github.com/ggoodman/cms-mcp-server/mcpservice"
)

const defaultMaxLineBytes = 4 << 20

// Handler is a single-connection stdio transport that reads newline-delimited
// JSON-RPC messages from an io.Reader and writes responses to an io.Writer.
// By default it uses os.Stdin and os.Stdout.
//
// Requests are served concurrently; writes are serialized so every message
// occupies exactly one line of output.
type Handler struct {
	srv     *mcpservice.Server
	r       io.Reader
	w       io.Writer
	l       *slog.Logger
	maxLine int

	writeMu     sync.Mutex
	initialized atomic.Bool

	inflightMu sync.Mutex
	inflight   map[any]context.CancelFunc
}

// NewHandler constructs a stdio Handler with defaults and applies options.
func NewHandler(srv *mcpservice.Server, opts ...Option) *Handler {
	h := &Handler{
		srv:      srv,
		r:        os.Stdin,
		w:        os.Stdout,
		l:        slog.New(slog.DiscardHandler),
		maxLine:  defaultMaxLineBytes,
		inflight: make(map[any]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Serve runs the event loop until EOF on the reader or until ctx is
// canceled. On EOF it waits for in-flight requests and returns nil. It is
// safe to call at most once per Handler.
func (h *Handler) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go h.forwardToolChanges(ctx, h.srv.Tools().Subscriber())

	lines, readErr := h.readLines(ctx)

	var requests sync.WaitGroup
	defer requests.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				if err := <-readErr; err != nil {
					return fmt.Errorf("stdio: read: %w", err)
				}
				return nil
			}
			h.handleLine(ctx, line, &requests)
		}
	}
}

// readLines frames the input. The reader goroutine is not tied to ctx
// because a blocked Read cannot be interrupted; it exits on EOF.
func (h *Handler) readLines(ctx context.Context) (<-chan []byte, <-chan error) {
	lines := make(chan []byte)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(h.r)
		sc.Buffer(make([]byte, 0, 64*1024), h.maxLine)
		for sc.Scan() {
			line := bytes.TrimSpace(sc.Bytes())
			if len(line) == 0 {
				continue
			}
			cp := make([]byte, len(line))
			copy(cp, line)
			select {
			case lines <- cp:
			case <-ctx.Done():
				errc <- nil
				return
			}
		}
		errc <- sc.Err()
	}()
	return lines, errc
}

func (h *Handler) handleLine(ctx context.Context, line []byte, requests *sync.WaitGroup) {
	msg, rpcErr := jsonrpc.Decode(line)
	if rpcErr != nil {
		var id *jsonrpc.RequestID
		if msg != nil {
			id = msg.ID
		}
		h.l.WarnContext(ctx, "stdio.read.error", slog.Int("code", int(rpcErr.Code)), slog.String("error", rpcErr.Message))
		h.write(ctx, jsonrpc.NewErrorResponse(id, rpcErr.Code, rpcErr.Message, nil))
		return
	}

	switch msg.Type() {
	case "response":
		h.l.DebugContext(ctx, "stdio.response.ignored", slog.String("id", msg.ID.String()))
	case "notification":
		h.handleNotification(ctx, msg.AsRequest())
	default:
		req := msg.AsRequest()
		requests.Add(1)
		go func() {
			defer requests.Done()
			h.handleRequest(ctx, req)
		}()
	}
}

func (h *Handler) handleNotification(ctx context.Context, req *jsonrpc.Request) {
	switch mcp.Method(req.Method) {
	case mcp.InitializedNotificationMethod:
		h.initialized.Store(true)
		h.l.DebugContext(ctx, "stdio.initialized")
	case mcp.CancelledNotificationMethod:
		var p mcp.CancelledNotification
		if err := json.Unmarshal(req.Params, &p); err != nil {
			h.l.WarnContext(ctx, "stdio.cancel.invalid", slog.Any("error", err))
			return
		}
		var id jsonrpc.RequestID
		if err := json.Unmarshal(p.RequestID, &id); err != nil {
			h.l.WarnContext(ctx, "stdio.cancel.invalid", slog.Any("error", err))
			return
		}
		h.cancelRequest(id.Value())
	default:
		h.l.DebugContext(ctx, "stdio.notification.ignored", slog.String("method", req.Method))
	}
}

func (h *Handler) handleRequest(ctx context.Context, req *jsonrpc.Request) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// String and numeric ids with the same text are distinct requests.
	key := req.ID.Value()
	h.track(key, cancel)
	defer h.untrack(key)

	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: req.Method, ID: req.ID.String()})

	result, err := h.dispatch(ctx, req)
	if err != nil {
		var rpcErr *jsonrpc.Error
		if !errors.As(err, &rpcErr) {
			h.l.ErrorContext(ctx, "stdio.request.error", slog.Any("error", err))
			rpcErr = jsonrpc.NewError(jsonrpc.ErrorCodeInternalError, "%v", err)
		}
		h.write(ctx, jsonrpc.NewErrorResponse(req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data))
		return
	}

	resp, err := jsonrpc.NewResultResponse(req.ID, result)
	if err != nil {
		h.l.ErrorContext(ctx, "stdio.encode.error", slog.Any("error", err))
		resp = jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "encode result", nil)
	}
	h.write(ctx, resp)
}

func (h *Handler) dispatch(ctx context.Context, req *jsonrpc.Request) (any, error) {
	tools := h.srv.Tools()

	switch mcp.Method(req.Method) {
	case mcp.InitializeMethod:
		var p mcp.InitializeRequest
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		res := h.srv.Initialize(ctx, &p)
		h.l.InfoContext(ctx, "stdio.initialize",
			slog.String("client", p.ClientInfo.Name),
			slog.String("protocol_version", res.ProtocolVersion),
		)
		return res, nil

	case mcp.PingMethod:
		return mcp.EmptyResult{}, nil

	case mcp.ToolsListMethod:
		var p mcp.ListToolsRequest
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		var cursor *string
		if p.Cursor != "" {
			cursor = &p.Cursor
		}
		page, err := tools.ListTools(ctx, cursor)
		if err != nil {
			return nil, err
		}
		res := mcp.ListToolsResult{Tools: page.Items}
		if page.NextCursor != nil {
			res.NextCursor = *page.NextCursor
		}
		return res, nil

	case mcp.ToolsCallMethod:
		var p mcp.CallToolRequestReceived
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		if p.Name == "" {
			return nil, jsonrpc.NewError(jsonrpc.ErrorCodeInvalidParams, "missing tool name")
		}
		res, err := tools.CallTool(ctx, &p)
		if errors.Is(err, mcpservice.ErrToolNotFound) {
			return nil, jsonrpc.NewError(jsonrpc.ErrorCodeInvalidParams, "unknown tool %q", p.Name)
		}
		if err != nil {
			return nil, err
		}
		return res, nil

	default:
		return nil, jsonrpc.NewError(jsonrpc.ErrorCodeMethodNotFound, "method not found: %s", req.Method)
	}
}

// forwardToolChanges emits notifications/tools/list_changed once the client
// has completed initialization.
func (h *Handler) forwardToolChanges(ctx context.Context, changes <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			if !h.initialized.Load() {
				continue
			}
			n, err := jsonrpc.Notification(string(mcp.ToolsListChangedNotificationMethod), nil)
			if err != nil {
				continue
			}
			h.write(ctx, n)
		}
	}
}

func (h *Handler) write(ctx context.Context, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		h.l.ErrorContext(ctx, "stdio.encode.error", slog.Any("error", err))
		return
	}
	b = append(b, '\n')

	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	if _, err := h.w.Write(b); err != nil {
		h.l.ErrorContext(ctx, "stdio.write.error", slog.Any("error", err))
	}
}

func (h *Handler) track(id any, cancel context.CancelFunc) {
	h.inflightMu.Lock()
	h.inflight[id] = cancel
	h.inflightMu.Unlock()
}

func (h *Handler) untrack(id any) {
	h.inflightMu.Lock()
	delete(h.inflight, id)
	h.inflightMu.Unlock()
}

func (h *Handler) cancelRequest(id any) {
	h.inflightMu.Lock()
	cancel, ok := h.inflight[id]
	h.inflightMu.Unlock()
	if ok {
		cancel()
	}
}

// decodeParams decodes request params. Absent params decode as the zero
// value.
func decodeParams(raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return jsonrpc.NewError(jsonrpc.ErrorCodeInvalidParams, "invalid params: %v", err)
	}
	return nil
}
