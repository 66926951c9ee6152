// Command api-server runs the checkout API.
package main

import (
	"context"

	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	server "github.com/souqline/checkout-api/internal/app"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, t *app.Telemetry) error {
		cfg, err := server.LoadConfig()
		if err != nil {
			return err
		}
		return server.Run(ctx, lg, t, cfg)
	})
}
