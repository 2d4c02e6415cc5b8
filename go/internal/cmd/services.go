package main

import (
	"database/sql"
	"fmt"

	"github.com/mcdev12/livepoll/go/internal/gateway"
	"github.com/mcdev12/livepoll/go/internal/realtime"
	"github.com/mcdev12/livepoll/go/internal/repository"
)

type Services struct {
	Repository *repository.Repository
	Transport  *realtime.NATSTransport
	Handler    *gateway.WebSocketHandler
}

func setupServices(database *sql.DB, config *Config) (*Services, error) {
	// Database layer → repository → transport → gateway.
	repo := repository.NewRepository(database)

	transport, err := realtime.NewNATSTransport(natsConfig(config))
	if err != nil {
		return nil, fmt.Errorf("failed to connect transport: %w", err)
	}

	connectionManager := gateway.NewConnectionManager(gateway.DefaultConnectionConfig(), repo)
	handler := gateway.NewWebSocketHandler(connectionManager, transport, repo)

	return &Services{
		Repository: repo,
		Transport:  transport,
		Handler:    handler,
	}, nil
}
