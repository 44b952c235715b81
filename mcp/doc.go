// Package mcp contains the Model Context Protocol data types used by the
// server: the initialize handshake, tool descriptors and tool results.
//
// The package holds no transport logic. The stdio transport frames these
// types as JSON-RPC messages and mcpservice builds them from the router's
// registered domains.
//
// # Method Names
//
// JSON-RPC method and notification names are enumerated as Method constants
// (e.g. ToolsListMethod).
//
// # Pagination
//
// tools/list is cursor paginated. PaginatedRequest and PaginatedResult are
// embedded in the request and result types.
package mcp
