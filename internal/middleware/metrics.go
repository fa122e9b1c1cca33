package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"Routinely/pkg/metrics"
)

// MetricsMiddleware 记录 HTTP 请求计数、耗时与在途数
func MetricsMiddleware() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		m := metrics.GetMetrics()
		if m == nil {
			c.Next(ctx)
			return
		}

		m.HTTPServerActiveRequests.Add(ctx, 1)
		start := time.Now()

		c.Next(ctx)

		m.HTTPServerActiveRequests.Add(ctx, -1)

		attrs := metric.WithAttributes(
			attribute.String("method", string(c.Method())),
			attribute.String("path", string(c.FullPath())),
			attribute.String("status", strconv.Itoa(c.Response.StatusCode())),
		)
		m.HTTPServerRequestTotal.Add(ctx, 1, attrs)
		m.HTTPServerDuration.Record(ctx, time.Since(start).Seconds(), attrs)
	}
}
