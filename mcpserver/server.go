package mcpserver

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/isdmx/codebot/archive"
	"github.com/isdmx/codebot/catalog"
	"github.com/isdmx/codebot/config"
	"github.com/isdmx/codebot/sandbox"
)

// MCPServer represents the MCP server
type MCPServer struct {
	config      *config.Config
	logger      *zap.Logger
	catalog     *catalog.Catalog
	sandboxExec sandbox.SandboxExecutor
	daemon      sandbox.Daemon
	mcpServer   *server.MCPServer
	httpServer  *server.StreamableHTTPServer
}

// New creates a new MCPServer
func New(cfg *config.Config, logger *zap.Logger, cat *catalog.Catalog, sandboxExec sandbox.SandboxExecutor, daemon sandbox.Daemon) (*MCPServer, error) {
	s := &MCPServer{
		config:      cfg,
		logger:      logger,
		catalog:     cat,
		sandboxExec: sandboxExec,
		daemon:      daemon,
	}

	// Log configuration parameters on startup
	logger.Info("configuration loaded",
		zap.String("server.transport", cfg.Server.Transport),
		zap.Int("server.http_port", cfg.Server.HTTPPort),
		zap.Int("sandbox.timeout_sec", cfg.Sandbox.TimeoutSec),
		zap.Int("sandbox.memory_mb", cfg.Sandbox.MemoryMB),
		zap.Int("sandbox.display_limit", cfg.Sandbox.DisplayLimit),
		zap.Int("sandbox.max_concurrent", cfg.Sandbox.MaxConcurrent),
		zap.Int("sandbox.pool.max_idle_per_image", cfg.Sandbox.Pool.MaxIdlePerImage),
		zap.String("catalog.path", cfg.Catalog.Path),
		zap.Strings("languages", cat.Aliases()),
	)

	s.mcpServer = server.NewMCPServer("codebot", "Runs code snippets in throwaway Docker containers")

	s.registerExecuteCodeTool()
	s.registerListContainersTool()

	if cfg.Server.Transport == "http" {
		s.httpServer = server.NewStreamableHTTPServer(s.mcpServer)
	}

	return s, nil
}

func (s *MCPServer) registerExecuteCodeTool() {
	tool := mcp.Tool{
		Name:        "execute_code",
		Description: "Compile and run a code snippet in an isolated, network-disabled container",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"language": map[string]any{
					"type":        "string",
					"description": "Language name or alias",
					"enum":        s.catalog.Aliases(),
				},
				"code": map[string]any{
					"type":        "string",
					"description": "Source code",
				},
				"attachments": map[string]any{
					"type":        "array",
					"description": "Files uploaded before the source, paths relative to the container root",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"name":           map[string]any{"type": "string"},
							"content_base64": map[string]any{"type": "string"},
						},
						"required": []string{"name", "content_base64"},
					},
				},
				"output_files": map[string]any{
					"type":        "array",
					"description": "Paths to download from the container after the run",
					"items":       map[string]any{"type": "string"},
				},
			},
			Required: []string{"language", "code"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleExecuteCode)
}

func (s *MCPServer) registerListContainersTool() {
	tool := mcp.Tool{
		Name:        "list_containers",
		Description: "List containers on the Docker host",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"all": map[string]any{
					"type":        "boolean",
					"description": "Include stopped containers",
				},
			},
		},
	}

	s.mcpServer.AddTool(tool, s.handleListContainers)
}

// handleExecuteCode handles the execute_code tool
func (s *MCPServer) handleExecuteCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := request.RequireString("code")
	if err != nil {
		return nil, fmt.Errorf("code parameter is required: %w", err)
	}

	language, err := request.RequireString("language")
	if err != nil {
		return nil, fmt.Errorf("language parameter is required: %w", err)
	}

	profile, err := s.catalog.Lookup(language)
	if err != nil {
		return errorResult(fmt.Sprintf("Unsupported language: %s", language)), nil
	}

	args := request.GetArguments()
	attachments, err := parseAttachments(args["attachments"])
	if err != nil {
		return errorResult(err.Error()), nil
	}
	outputFiles, err := parseStrings(args["output_files"])
	if err != nil {
		return errorResult(fmt.Sprintf("invalid output_files: %v", err)), nil
	}

	s.logger.Info("executing code in sandbox",
		zap.String("language", profile.Name),
		zap.Int("attachments", len(attachments)),
		zap.Strings("output_files", outputFiles))

	result, err := s.sandboxExec.Execute(ctx, sandbox.ExecuteRequest{
		Profile:     profile,
		Source:      code,
		Attachments: attachments,
		OutputPaths: outputFiles,
		Timeout:     s.config.GetTimeout(),
		Notify:      s.notifier(ctx),
	})
	if err != nil {
		s.logger.Error("sandbox execution failed",
			zap.Error(err),
			zap.String("language", profile.Name))
		return errorResult(fmt.Sprintf("Execution failed: %v", err)), nil
	}

	report := result.Render(s.config.Sandbox.DisplayLimit)

	s.logger.Info("code execution completed",
		zap.String("language", profile.Name),
		zap.String("container", result.Container),
		zap.Bool("timed_out", result.TimedOut),
		zap.Int("run_log_len", len(result.RunLog)),
		zap.Int("compile_log_len", len(result.CompileLog)),
		zap.Int("attachments", len(report.Attachments)))

	content := []mcp.Content{mcp.NewTextContent(report.Text)}
	for _, a := range report.Attachments {
		content = append(content, mcp.NewEmbeddedResource(mcp.BlobResourceContents{
			URI:      "file:///" + strings.TrimPrefix(a.Path, "/"),
			MIMEType: http.DetectContentType(a.Data),
			Blob:     base64.StdEncoding.EncodeToString(a.Data),
		}))
	}

	return &mcp.CallToolResult{Content: content}, nil
}

// handleListContainers handles the list_containers tool
func (s *MCPServer) handleListContainers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	all := request.GetBool("all", false)

	list, err := sandbox.ListContainers(ctx, s.daemon, all)
	if err != nil {
		s.logger.Error("container listing failed", zap.Error(err))
		return errorResult(fmt.Sprintf("Listing failed: %v", err)), nil
	}

	return mcp.NewToolResultText(sandbox.FormatContainers(list)), nil
}

// notifier forwards pipeline progress to the client as log messages
func (s *MCPServer) notifier(ctx context.Context) func(string) {
	srv := server.ServerFromContext(ctx)
	if srv == nil {
		return nil
	}
	return func(message string) {
		err := srv.SendNotificationToClient(ctx, "notifications/message", map[string]any{
			"level":  "info",
			"logger": "codebot",
			"data":   message,
		})
		if err != nil {
			s.logger.Debug("progress notification dropped", zap.Error(err))
		}
	}
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(text)},
		IsError: true,
	}
}

func parseAttachments(raw any) ([]archive.Entry, error) {
	if raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, errors.New("invalid attachments: expected an array")
	}

	entries := make([]archive.Entry, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("invalid attachment %d: expected an object", i)
		}
		name, _ := obj["name"].(string)
		if name == "" {
			return nil, fmt.Errorf("invalid attachment %d: name is required", i)
		}
		encoded, _ := obj["content_base64"].(string)
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("failed to decode attachment %s: %w", name, err)
		}
		entries = append(entries, archive.Entry{Path: name, Data: data})
	}
	return entries, nil
}

func parseStrings(raw any) ([]string, error) {
	if raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, errors.New("expected an array of strings")
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		str, ok := item.(string)
		if !ok || str == "" {
			return nil, errors.New("expected an array of strings")
		}
		out = append(out, str)
	}
	return out, nil
}

// ServeStdio starts the server on stdio
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server on stdio")
	return server.ServeStdio(s.mcpServer)
}

// ServeHTTP starts the server on HTTP
func (s *MCPServer) ServeHTTP() error {
	port := s.config.Server.HTTPPort
	s.logger.Info("starting MCP server on HTTP", zap.Int("port", port))

	if s.httpServer == nil {
		return errors.New("http transport not configured")
	}
	return s.httpServer.Start(fmt.Sprintf(":%d", port))
}

// Shutdown stops the HTTP transport, if running
func (s *MCPServer) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// GetMCPServer returns the underlying MCP server for fx
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
