package mcpservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ggoodman/cms-mcp-server/envelope"
	"github.com/ggoodman/cms-mcp-server/mcp"
	"github.com/ggoodman/cms-mcp-server/router"
)

// DescribeActionTool is the name of the tool returning an action's argument
// schema.
const DescribeActionTool = "describe_action"

const defaultPageSize = 50

// ToolsOption configures a ToolsContainer.
type ToolsOption func(*ToolsContainer)

// WithDescriptions sets the per-domain tool descriptions. The list of actions
// is appended to each.
func WithDescriptions(m map[string]string) ToolsOption {
	return func(tc *ToolsContainer) { tc.descriptions = m }
}

// WithPageSize sets the tools/list page size. Non-positive values are
// ignored.
func WithPageSize(n int) ToolsOption {
	return func(tc *ToolsContainer) {
		if n > 0 {
			tc.pageSize = n
		}
	}
}

// WithToolsLogger sets the container logger.
func WithToolsLogger(l *slog.Logger) ToolsOption {
	return func(tc *ToolsContainer) {
		if l != nil {
			tc.log = l
		}
	}
}

// ToolsContainer exposes the router as MCP tools: one tool per registered
// domain taking {action, args}, plus describe_action. The tool set follows
// router registrations and deregistrations.
type ToolsContainer struct {
	router       *router.Router
	log          *slog.Logger
	descriptions map[string]string
	pageSize     int

	mu    sync.RWMutex
	tools []mcp.Tool

	notifier ChangeNotifier
}

var _ ToolsCapability = (*ToolsContainer)(nil)

// NewToolsContainer builds the tool set from r and subscribes to its changes.
func NewToolsContainer(r *router.Router, opts ...ToolsOption) *ToolsContainer {
	tc := &ToolsContainer{
		router:   r,
		log:      slog.New(slog.DiscardHandler),
		pageSize: defaultPageSize,
	}
	for _, opt := range opts {
		opt(tc)
	}
	tc.rebuild()
	r.OnChange(func(domain string, registered bool) {
		tc.rebuild()
		tc.log.Debug("mcp.tools.changed", slog.String("domain", domain), slog.Bool("registered", registered))
		tc.notifier.Notify()
	})
	return tc
}

// Snapshot returns a copy of the current tool descriptors.
func (tc *ToolsContainer) Snapshot() []mcp.Tool {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	out := make([]mcp.Tool, len(tc.tools))
	copy(out, tc.tools)
	return out
}

// ListTools implements ToolsCapability.
func (tc *ToolsContainer) ListTools(ctx context.Context, cursor *string) (Page[mcp.Tool], error) {
	if err := ctx.Err(); err != nil {
		return Page[mcp.Tool]{}, err
	}
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return paginate(tc.tools, tc.pageSize, cursor), nil
}

// CallTool implements ToolsCapability.
func (tc *ToolsContainer) CallTool(ctx context.Context, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error) {
	if req == nil || req.Name == "" {
		return nil, fmt.Errorf("%w: missing name", ErrToolNotFound)
	}
	if req.Name == DescribeActionTool {
		return tc.describe(req.Arguments), nil
	}
	if !tc.router.Has(req.Name) {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, req.Name)
	}

	var in struct {
		Action string          `json:"action"`
		Args   json.RawMessage `json:"args"`
	}
	if err := decodeArguments(req.Arguments, &in); err != nil {
		return Result(envelope.Validation([]envelope.Issue{{Path: "input", Message: err.Error()}})), nil
	}
	if in.Action == "" {
		return Result(envelope.Validation([]envelope.Issue{{Path: "action", Message: "is required"}})), nil
	}
	return Result(tc.router.Dispatch(ctx, req.Name, in.Action, in.Args)), nil
}

// Subscriber implements ChangeSubscriber.
func (tc *ToolsContainer) Subscriber() <-chan struct{} {
	return tc.notifier.Subscriber()
}

// Close stops change notifications.
func (tc *ToolsContainer) Close() {
	tc.notifier.Close()
}

func (tc *ToolsContainer) describe(raw json.RawMessage) *mcp.CallToolResult {
	var in struct {
		Domain string `json:"domain"`
		Action string `json:"action"`
	}
	if err := decodeArguments(raw, &in); err != nil {
		return Result(envelope.Validation([]envelope.Issue{{Path: "input", Message: err.Error()}}))
	}
	var issues []envelope.Issue
	if in.Domain == "" {
		issues = append(issues, envelope.Issue{Path: "domain", Message: "is required"})
	}
	if in.Action == "" {
		issues = append(issues, envelope.Issue{Path: "action", Message: "is required"})
	}
	if len(issues) > 0 {
		return Result(envelope.Validation(issues))
	}
	a, err := tc.router.Describe(in.Domain, in.Action)
	if err != nil {
		return Result(envelope.FromError(err, envelope.Target{}))
	}
	return Result(envelope.Success(a))
}

// rebuild recomputes the descriptors from the router. The lock is held for
// the whole rebuild so concurrent changes cannot publish a stale set.
func (tc *ToolsContainer) rebuild() {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	domains := tc.router.Domains()
	tools := make([]mcp.Tool, 0, len(domains)+1)
	for _, d := range domains {
		tools = append(tools, tc.domainTool(d))
	}
	if len(domains) > 0 {
		tools = append(tools, describeTool(domains))
	}
	tc.tools = tools
}

func (tc *ToolsContainer) domainTool(domain string) mcp.Tool {
	actions := tc.router.Actions(domain)
	names := make([]any, 0, len(actions))

	var b strings.Builder
	if desc := tc.descriptions[domain]; desc != "" {
		b.WriteString(desc)
	} else {
		fmt.Fprintf(&b, "Operations on %s.", domain)
	}
	b.WriteString("\n\nActions:\n")
	for _, a := range actions {
		names = append(names, a.Name)
		fmt.Fprintf(&b, "- %s: %s\n", a.Name, a.Description)
	}
	fmt.Fprintf(&b, "\nCall %s for the argument schema of an action.", DescribeActionTool)

	return mcp.Tool{
		Name:        domain,
		Description: b.String(),
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]mcp.SchemaProperty{
				"action": {Type: "string", Description: "Action to run", Enum: names},
				"args":   {Type: "object", Description: "Arguments of the action. Every action requires apiToken."},
			},
			Required: []string{"action", "args"},
		},
	}
}

func describeTool(domains []string) mcp.Tool {
	enum := make([]any, 0, len(domains))
	for _, d := range domains {
		enum = append(enum, d)
	}
	return mcp.Tool{
		Name:        DescribeActionTool,
		Description: "Return the JSON schema of the arguments of one action.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]mcp.SchemaProperty{
				"domain": {Type: "string", Enum: enum},
				"action": {Type: "string"},
			},
			Required: []string{"domain", "action"},
		},
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}
}

// decodeArguments decodes tool arguments strictly. Absent arguments decode
// as an empty object.
func decodeArguments(raw json.RawMessage, v any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = []byte("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// Result renders an envelope as a tool result: the envelope JSON as text,
// the same object as structured content, and IsError when it failed.
func Result(env envelope.Envelope) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content:           []mcp.ContentBlock{mcp.TextContent(string(env.JSON()))},
		StructuredContent: env.Map(),
		IsError:           !env.Success,
	}
}
