// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
//
// The mcpserver package is the chat-facing front end of codebot. It uses the
// mark3labs/mcp-go library to handle the protocol details and exposes two
// tools: execute_code, which runs a snippet through the sandbox pipeline and
// returns the rendered report with any files as embedded resources, and
// list_containers, which lists the containers on the Docker host.
//
// The server supports both stdio and HTTP transports as configured by the
// application configuration.
//
// Usage:
//
//	server, err := mcpserver.New(config, logger, catalog, executor, daemon)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = server.ServeStdio() // or server.ServeHTTP()
package mcpserver
