package server

import (
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "svbridge_requests_total",
	Help: "Inbound requests by route and status.",
}, []string{"path", "status"})

// requestMetrics counts each request against its registered route, so model
// names in native paths do not explode the label space.
func requestMetrics() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			requestsTotal.WithLabelValues(route, strconv.Itoa(c.Response().Status)).Inc()
			return err
		}
	}
}
