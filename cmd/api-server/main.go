// Command api-server runs the artisan marketplace payment backend: gateway
// order creation, payment verification and order history.
package main

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	checkoutapp "github.com/xenking/artisan-checkout/internal/app"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, t *app.Telemetry) error {
		cfg, err := checkoutapp.LoadConfig()
		if err != nil {
			return errors.Wrap(err, "load config")
		}
		return checkoutapp.Run(ctx, lg.Named("api"), t, cfg)
	})
}
