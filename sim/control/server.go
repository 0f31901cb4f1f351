// Package control exposes a running driver as an MCP (Model Context Protocol)
// server so external tools can step, inspect and command the simulation.
package control

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/adversarial-coverage/adsim/sim/driver"
	"github.com/adversarial-coverage/adsim/sim/store"
)

// Server wraps the MCP SDK server around a driver.
type Server struct {
	server *sdk.Server
	driver *driver.Driver
	store  store.Store
}

// Config holds server configuration.
type Config struct {
	Name    string // e.g. "adsim"
	Version string
}

// NewServer creates an MCP server with the simulation tools. st may be nil,
// in which case sim_stats reports no history.
func NewServer(cfg *Config, d *driver.Driver, st store.Store) *Server {
	s := &Server{
		server: sdk.NewServer(&sdk.Implementation{Name: cfg.Name, Version: cfg.Version}, nil),
		driver: d,
		store:  st,
	}
	s.registerTools()
	return s
}

// Run serves over stdio until the client disconnects, ctx is cancelled or the
// process is interrupted. The driver is killed on return.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := s.server.Run(ctx, &sdk.StdioTransport{})
	if kerr := s.driver.Kill(context.Background()); kerr != nil && err == nil {
		err = fmt.Errorf("stopping driver: %w", kerr)
	}
	return err
}

// Connect serves a single session over t.
func (s *Server) Connect(ctx context.Context, t sdk.Transport) (*sdk.ServerSession, error) {
	return s.server.Connect(ctx, t, nil)
}
