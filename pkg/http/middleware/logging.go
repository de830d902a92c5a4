package middleware

import (
	"time"

	applogger "BankStats/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RequestLogging logs one line per request at debug, 5xx at error
// and anything slower than slowThreshold at warn.
func RequestLogging(l *applogger.Logger, slowThreshold time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			latency := time.Since(start)
			fields := []applogger.Field{
				applogger.String("method", c.Request().Method),
				applogger.String("route", routeLabel(c)),
				applogger.Int("status", c.Response().Status),
				applogger.Duration("duration_ms", latency),
				applogger.String("remote", c.RealIP()),
			}
			switch {
			case c.Response().Status >= 500:
				l.Error("http request failed", fields...)
			case slowThreshold > 0 && latency >= slowThreshold:
				l.Warn("http request slow", fields...)
			default:
				l.Debug("http request", fields...)
			}
			return nil
		}
	}
}
