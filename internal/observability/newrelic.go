package observability

import (
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/newrelic/go-agent/v3/newrelic"

	"github.com/gamefusion/promptlog/internal/config"
)

// NewApplication starts the New Relic agent. Without a license key it returns
// a nil application; every agent method is nil-safe, so callers need no checks.
func NewApplication(cfg *config.ObservabilityConfig) (*newrelic.Application, error) {
	if !cfg.NewRelicEnabled() {
		return nil, nil
	}
	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(cfg.NewRelic.AppName),
		newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
		newrelic.ConfigAppLogForwardingEnabled(false),
		func(c *newrelic.Config) {
			c.Labels = map[string]string{"env": cfg.Environment}
		},
	)
	if err != nil {
		return nil, fmt.Errorf("new relic: %w", err)
	}
	return app, nil
}

// Transactions wraps each request in a web transaction named after its route
// and stores it in the request context, where nrpgx5 picks it up for
// datastore segments.
func Transactions(app *newrelic.Application) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if app == nil {
				return next(c)
			}
			req := c.Request()
			txn := app.StartTransaction(req.Method + " " + c.Path())
			defer txn.End()

			txn.SetWebRequestHTTP(req)
			c.Response().Writer = txn.SetWebResponse(c.Response().Writer)
			c.SetRequest(req.WithContext(newrelic.NewContext(req.Context(), txn)))

			err := next(c)
			if err != nil {
				txn.NoticeError(err)
			}
			return err
		}
	}
}
