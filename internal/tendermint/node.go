// Package tendermint connects the registry to a Tendermint node. The node
// runs as a separate process and reaches the application over an ABCI
// socket; clients submit transactions and queries through its JSON-RPC
// endpoint.
package tendermint

import (
	"errors"
	"fmt"
	"os"
	"strings"

	abciserver "github.com/tendermint/tendermint/abci/server"
	abci "github.com/tendermint/tendermint/abci/types"
	"github.com/tendermint/tendermint/libs/service"
)

// Config holds configuration for the ABCI server and Tendermint connection.
type Config struct {
	// TendermintHome is the directory for Tendermint data and config
	TendermintHome string

	// SocketAddress is the ABCI listen address, "unix://pubreg.sock" or
	// "tcp://127.0.0.1:26658"
	SocketAddress string
}

// ABCIServer wraps an ABCI socket server.
type ABCIServer struct {
	server service.Service
	config *Config
	socket string
}

// NewABCIServer creates a socket server for app. Call Start to listen.
func NewABCIServer(app abci.Application, config *Config) (*ABCIServer, error) {
	if app == nil {
		return nil, errors.New("ABCI application cannot be nil")
	}
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}
	if config.SocketAddress == "" {
		return nil, errors.New("socket address cannot be empty")
	}

	return &ABCIServer{
		server: abciserver.NewSocketServer(config.SocketAddress, app),
		config: config,
		socket: config.SocketAddress,
	}, nil
}

// Start begins accepting Tendermint connections. A socket file left behind
// by an unclean shutdown is removed first.
func (s *ABCIServer) Start() error {
	if socketPath, ok := strings.CutPrefix(s.socket, "unix://"); ok {
		os.Remove(socketPath)
	}
	if err := s.server.Start(); err != nil {
		return fmt.Errorf("failed to start ABCI server: %w", err)
	}
	return nil
}

// Stop shuts the server down and removes a unix socket file.
func (s *ABCIServer) Stop() error {
	if s.server.IsRunning() {
		if err := s.server.Stop(); err != nil {
			return fmt.Errorf("failed to stop ABCI server: %w", err)
		}
	}

	if socketPath, ok := strings.CutPrefix(s.socket, "unix://"); ok {
		if _, err := os.Stat(socketPath); err == nil {
			os.Remove(socketPath)
		}
	}
	return nil
}

func (s *ABCIServer) IsRunning() bool {
	return s.server.IsRunning()
}

// SocketPath returns the socket address the server is listening on.
func (s *ABCIServer) SocketPath() string {
	return s.socket
}
