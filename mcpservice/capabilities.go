package mcpservice

import (
	"context"
	"errors"
	"strconv"

	"github.com/ggoodman/cms-mcp-server/mcp"
)

// ErrToolNotFound is returned by CallTool for names that are not listed.
var ErrToolNotFound = errors.New("tool not found")

// ToolsCapability is the tools feature as seen by a transport.
//
// Contract:
//   - ListTools returns one page; a nil or empty cursor requests the first.
//   - CallTool never returns a Go error for failures of the invoked
//     operation. Those are reported in the result with IsError set. A Go
//     error means the request itself could not be served (unknown tool).
//   - Subscriber signals whenever the listed tool set changes.
type ToolsCapability interface {
	ListTools(ctx context.Context, cursor *string) (Page[mcp.Tool], error)
	CallTool(ctx context.Context, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error)
	ChangeSubscriber
}

// Page represents a single page of results with an optional cursor for
// fetching the next page. Items is never nil.
type Page[T any] struct {
	Items      []T
	NextCursor *string
}

// paginate cuts one page out of all. Cursors are decimal offsets; malformed
// or out of range cursors restart from the beginning.
func paginate[T any](all []T, pageSize int, cursor *string) Page[T] {
	start := parseCursor(cursor)
	if start > len(all) {
		start = 0
	}
	end := len(all)
	if pageSize > 0 && start+pageSize < end {
		end = start + pageSize
	}
	items := make([]T, end-start)
	copy(items, all[start:end])
	p := Page[T]{Items: items}
	if end < len(all) {
		next := strconv.Itoa(end)
		p.NextCursor = &next
	}
	return p
}

func parseCursor(cursor *string) int {
	if cursor == nil || *cursor == "" {
		return 0
	}
	n, err := strconv.Atoi(*cursor)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
