package obs

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/noah-isme/toko-cart/internal/common"
)

// CartMetrics holds the cart engine collectors. A nil *CartMetrics is a no-op.
type CartMetrics struct {
	Mutations         *prometheus.CounterVec
	VoucherDetached   *prometheus.CounterVec
	VoucherRejections *prometheus.CounterVec
	MergeItems        *prometheus.CounterVec
	RecalcDuration    prometheus.Histogram
}

// NewCartMetrics registers the cart collectors on reg.
func NewCartMetrics(namespace string, reg prometheus.Registerer) *CartMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &CartMetrics{
		Mutations: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_mutations_total",
			Help:      "Cart mutations by operation and outcome.",
		}, []string{"op", "result"})),
		VoucherDetached: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_voucher_detached_total",
			Help:      "Vouchers silently detached during recalculation, by reason.",
		}, []string{"reason"})),
		VoucherRejections: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voucher_rejections_total",
			Help:      "Explicit voucher applications rejected, by reason.",
		}, []string{"reason"})),
		MergeItems: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_merge_items_total",
			Help:      "Guest cart lines processed by merges, by outcome.",
		}, []string{"outcome"})),
		RecalcDuration: register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cart_recalc_duration_ms",
			Help:      "Time spent recomputing cart totals in milliseconds.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100},
		})),
	}
}

// ObserveMutation counts one mutation. Client errors are reported as
// "rejected", everything else non-nil as "error".
func (m *CartMetrics) ObserveMutation(op string, err error) {
	if m == nil {
		return
	}
	m.Mutations.WithLabelValues(op, mutationResult(err)).Inc()
}

func mutationResult(err error) string {
	if err == nil {
		return "ok"
	}
	if appErr, ok := common.AsAppError(err); ok && appErr.HTTPStatus > 0 && appErr.HTTPStatus < http.StatusInternalServerError {
		return "rejected"
	}
	return "error"
}

// VoucherDetachedInc records a silent detachment.
func (m *CartMetrics) VoucherDetachedInc(reason string) {
	if m == nil {
		return
	}
	m.VoucherDetached.WithLabelValues(reason).Inc()
}

// VoucherRejectedInc records an explicit rejection.
func (m *CartMetrics) VoucherRejectedInc(reason string) {
	if m == nil {
		return
	}
	m.VoucherRejections.WithLabelValues(reason).Inc()
}

// MergeItemsAdd records merge outcomes.
func (m *CartMetrics) MergeItemsAdd(merged, skipped int) {
	if m == nil {
		return
	}
	m.MergeItems.WithLabelValues("merged").Add(float64(merged))
	m.MergeItems.WithLabelValues("skipped").Add(float64(skipped))
}

// ObserveRecalc records the duration of a recalculation.
func (m *CartMetrics) ObserveRecalc(d time.Duration) {
	if m == nil {
		return
	}
	m.RecalcDuration.Observe(DurationMillis(d))
}
