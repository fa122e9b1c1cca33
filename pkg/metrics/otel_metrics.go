package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics 提醒调度指标集合
type OTelMetrics struct {
	RemindersGeneratedTotal metric.Int64Counter
	DeliveriesTotal         metric.Int64Counter
	DeliveryDuration        metric.Float64Histogram
	DeliveryRetryTotal      metric.Int64Counter
	EscalationsTotal        metric.Int64Counter
	AutoSkipsTotal          metric.Int64Counter
	PostponesTotal          metric.Int64Counter
	QuietDeferralsTotal     metric.Int64Counter

	HTTPServerRequestTotal   metric.Int64Counter
	HTTPServerDuration       metric.Float64Histogram
	HTTPServerActiveRequests metric.Int64UpDownCounter
}

var (
	metrics *OTelMetrics

	meter = otel.Meter("routinely")
)

// InitMetrics 初始化全部指标
func InitMetrics() error {
	var err error

	metrics = &OTelMetrics{}

	metrics.RemindersGeneratedTotal, err = meter.Int64Counter(
		"reminders_generated_total",
		metric.WithDescription("Total number of reminder rows materialized by the horizon scheduler"),
		metric.WithUnit("{reminder}"),
	)
	if err != nil {
		return err
	}

	metrics.DeliveriesTotal, err = meter.Int64Counter(
		"reminder_deliveries_total",
		metric.WithDescription("Total number of reminder delivery attempts by outcome"),
		metric.WithUnit("{delivery}"),
	)
	if err != nil {
		return err
	}

	metrics.DeliveryDuration, err = meter.Float64Histogram(
		"reminder_delivery_duration_seconds",
		metric.WithDescription("Time spent delivering a reminder message in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	metrics.DeliveryRetryTotal, err = meter.Int64Counter(
		"reminder_delivery_retry_total",
		metric.WithDescription("Total number of delivery retry attempts"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return err
	}

	metrics.EscalationsTotal, err = meter.Int64Counter(
		"reminder_escalations_total",
		metric.WithDescription("Total number of escalation messages sent by level"),
		metric.WithUnit("{escalation}"),
	)
	if err != nil {
		return err
	}

	metrics.AutoSkipsTotal, err = meter.Int64Counter(
		"reminder_auto_skips_total",
		metric.WithDescription("Total number of reminders auto-skipped after the escalation window"),
		metric.WithUnit("{reminder}"),
	)
	if err != nil {
		return err
	}

	metrics.PostponesTotal, err = meter.Int64Counter(
		"reminder_postpones_total",
		metric.WithDescription("Total number of user postpone operations"),
		metric.WithUnit("{postpone}"),
	)
	if err != nil {
		return err
	}

	metrics.QuietDeferralsTotal, err = meter.Int64Counter(
		"reminder_quiet_deferrals_total",
		metric.WithDescription("Total number of deliveries deferred by quiet hours"),
		metric.WithUnit("{deferral}"),
	)
	if err != nil {
		return err
	}

	metrics.HTTPServerRequestTotal, err = meter.Int64Counter(
		"http_server_request_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	metrics.HTTPServerDuration, err = meter.Float64Histogram(
		"http_server_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	metrics.HTTPServerActiveRequests, err = meter.Int64UpDownCounter(
		"http_server_active_requests",
		metric.WithDescription("Number of in-flight HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	return nil
}

// GetMetrics 获取全局指标实例，未初始化时返回 nil
func GetMetrics() *OTelMetrics {
	return metrics
}

// RecordRemindersGenerated 记录一次滚动生成的提醒数量
func RecordRemindersGenerated(count int64) {
	m := GetMetrics()
	if m == nil {
		return
	}
	m.RemindersGeneratedTotal.Add(context.Background(), count)
}

// RecordDelivery 记录一次投递尝试结果及耗时
func RecordDelivery(category, status string, duration float64) {
	m := GetMetrics()
	if m == nil {
		return
	}
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("category", category),
		attribute.String("status", status),
	)
	m.DeliveriesTotal.Add(ctx, 1, attrs)
	m.DeliveryDuration.Record(ctx, duration, attrs)
}

// RecordDeliveryRetry 记录一次投递重试
func RecordDeliveryRetry(reason string) {
	m := GetMetrics()
	if m == nil {
		return
	}
	m.DeliveryRetryTotal.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("retry_reason", reason),
	))
}

// RecordEscalation 记录一次升级消息
func RecordEscalation(level int) {
	m := GetMetrics()
	if m == nil {
		return
	}
	m.EscalationsTotal.Add(context.Background(), 1, metric.WithAttributes(
		attribute.Int("level", level),
	))
}

// RecordAutoSkip 记录一次超时自动跳过
func RecordAutoSkip(category string) {
	m := GetMetrics()
	if m == nil {
		return
	}
	m.AutoSkipsTotal.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("category", category),
	))
}

// RecordPostpone 记录一次用户推迟
func RecordPostpone(category string) {
	m := GetMetrics()
	if m == nil {
		return
	}
	m.PostponesTotal.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("category", category),
	))
}

// RecordQuietDeferral 记录一次免打扰延后
func RecordQuietDeferral() {
	m := GetMetrics()
	if m == nil {
		return
	}
	m.QuietDeferralsTotal.Add(context.Background(), 1)
}
