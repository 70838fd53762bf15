// Package logger builds the zap loggers used across codebot.
//
// Two modes are supported: "development" writes colored console lines and
// "production" writes JSON with an ISO8601 timestamp field. Output defaults
// to stderr; stdout is refused because the MCP stdio transport owns it.
//
// Usage:
//
//	log, err := logger.New("development", "debug")
//	if err != nil {
//	    panic(err)
//	}
//	log.Info("Sandbox ready", zap.String("container", name))
//
// The server builds its logger from configuration instead:
//
//	log, err := logger.NewFromConfig(cfg)
package logger
