//go:build wireinject
// +build wireinject

package wire

import (
	"context"

	"github.com/google/wire"

	"github.com/sevigo/shot-warden/internal/app"
)

// InitializeApp wires the full process: API, workers and sweeper.
func InitializeApp(ctx context.Context) (*app.App, func(), error) {
	wire.Build(InfraSet, PipelineSet, ServerSet)
	return &app.App{}, nil, nil
}

// InitializeToolkit wires storage and the queue for operator commands.
func InitializeToolkit(ctx context.Context) (*Toolkit, func(), error) {
	wire.Build(InfraSet, provideNotifications, wire.Struct(new(Toolkit), "*"))
	return &Toolkit{}, nil, nil
}
