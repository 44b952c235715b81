// Package mcpservice adapts the action router to the MCP tools capability.
//
// Every registered domain is listed as one tool whose input is
// {"action": <name>, "args": {...}}. The tool description enumerates the
// domain's actions, and the describe_action tool returns the JSON schema of a
// single action's arguments. Calls are dispatched through the router and the
// resulting envelope is returned both as JSON text and as structured content,
// with isError set when the envelope reports a failure.
//
// Registering or deregistering a domain on the router updates the tool list
// and signals subscribers so transports can emit
// notifications/tools/list_changed.
//
// Typical wiring:
//
//	tc := mcpservice.NewToolsContainer(rtr, mcpservice.WithDescriptions(tools.Descriptions))
//	srv := mcpservice.NewServer(tc, mcpservice.WithServerInfo(info))
//	h := stdio.NewHandler(srv)
//	err := h.Serve(ctx)
package mcpservice
