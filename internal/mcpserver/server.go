package mcpserver

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"shipyard/internal/api"
	"shipyard/internal/config"
	"shipyard/pkg/logging"
)

// Server serves the sync tools over the configured MCP transport.
type Server struct {
	cfg config.ServerConfig
	mcp *server.MCPServer

	mu         sync.Mutex
	cancelFunc context.CancelFunc
	streamable *server.StreamableHTTPServer
	started    bool
	wg         sync.WaitGroup
}

// NewServer creates a server and registers its tools.
func NewServer(cfg config.ServerConfig, version string) *Server {
	s := &Server{
		cfg: cfg,
		mcp: server.NewMCPServer(
			"shipyard",
			version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
	}
	s.registerTools()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// Start begins serving in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("mcp server already started")
	}
	s.started = true

	ctx, s.cancelFunc = context.WithCancel(ctx)
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	switch s.cfg.Transport {
	case config.MCPTransportStdio:
		logging.Info(api.SubsystemServer, "Starting MCP server with stdio transport")
		stdio := server.NewStdioServer(s.mcp)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
				logging.Error(api.SubsystemServer, err, "Stdio server error")
			}
		}()

	case config.MCPTransportStreamableHTTP:
		fallthrough
	default:
		logging.Info(api.SubsystemServer, "Starting MCP server with streamable-http transport on %s", addr)
		s.streamable = server.NewStreamableHTTPServer(s.mcp)
		streamable := s.streamable
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := streamable.Start(addr); err != nil && err != http.ErrServerClosed {
				logging.Error(api.SubsystemServer, err, "Streamable HTTP server error")
			}
		}()
	}
	return nil
}

// Stop shuts the transport down and waits for it to exit.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return fmt.Errorf("mcp server not started")
	}
	cancel := s.cancelFunc
	streamable := s.streamable
	s.started = false
	s.mu.Unlock()

	logging.Info(api.SubsystemServer, "Stopping MCP server")
	cancel()

	var err error
	if streamable != nil {
		shutdownCtx, done := context.WithTimeout(ctx, 5*time.Second)
		defer done()
		if err = streamable.Shutdown(shutdownCtx); err != nil {
			logging.Error(api.SubsystemServer, err, "Error shutting down streamable HTTP server")
		}
	}
	s.wg.Wait()
	return err
}
