// Package stdio implements a single-connection MCP transport over
// stdin/stdout, the way MCP clients launch local servers as subprocesses.
//
// Characteristics
//
//	Connection model : 1 process <-> 1 client
//	Auth             : none at the transport; each operation carries apiToken
//	Framing          : newline-delimited JSON-RPC 2.0
//	Concurrency      : requests served concurrently, writes serialized
//
// Stdout carries protocol messages only; loggers passed with WithLogger must
// write elsewhere (the command writes logs to stderr).
//
// Example:
//
//	tc := mcpservice.NewToolsContainer(rtr)
//	h := stdio.NewHandler(mcpservice.NewServer(tc), stdio.WithLogger(logger))
//	if err := h.Serve(ctx); err != nil {
//		return err
//	}
package stdio
