// Package main is the entry point for codebot.
//
// codebot runs code snippets sent by chat users inside throwaway,
// network-disabled Docker containers and exposes the engine as a Model
// Context Protocol (MCP) server over stdio or HTTP.
//
// Commands:
//
//	codebot serve   run the MCP server
//	codebot sweep   list sandbox containers left behind by a crash
//	                (--force removes them)
//	codebot ps      list running containers
//
// The serve command uses Uber's fx framework for dependency injection and
// lifecycle management, with zap for structured logging and viper for
// configuration.
package main
