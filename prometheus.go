package toll

import (
	"github.com/lightninglabs/toll/stats"
	"github.com/prometheus/client_golang/prometheus"
)

// metricPrefix is prepended to all metric names exported by the booth.
const metricPrefix = "lightning_toll_"

// statsCollector projects the stats recorder onto Prometheus metrics. The
// counters live in the recorder, so this is a pure read-side collector that
// takes a snapshot on every scrape.
type statsCollector struct {
	recorder *stats.Recorder

	revenueTotal  *prometheus.Desc
	requestsTotal *prometheus.Desc
	paidTotal     *prometheus.Desc
	uniquePayers  *prometheus.Desc

	endpointRevenue  *prometheus.Desc
	endpointRequests *prometheus.Desc
	endpointPaid     *prometheus.Desc
	endpointFree     *prometheus.Desc

	paymentsPerMinute *prometheus.Desc
	averagePayment    *prometheus.Desc
}

// A compile time flag to ensure the statsCollector satisfies the Collector
// interface.
var _ prometheus.Collector = (*statsCollector)(nil)

func newStatsCollector(recorder *stats.Recorder) *statsCollector {
	endpointLabels := []string{"endpoint"}

	return &statsCollector{
		recorder: recorder,
		revenueTotal: prometheus.NewDesc(
			metricPrefix+"revenue_sats_total",
			"Total revenue in satoshis", nil, nil,
		),
		requestsTotal: prometheus.NewDesc(
			metricPrefix+"requests_total",
			"Total number of admitted requests", nil, nil,
		),
		paidTotal: prometheus.NewDesc(
			metricPrefix+"paid_requests_total",
			"Total number of paid requests", nil, nil,
		),
		uniquePayers: prometheus.NewDesc(
			metricPrefix+"unique_payers",
			"Number of distinct paying clients", nil, nil,
		),
		endpointRevenue: prometheus.NewDesc(
			metricPrefix+"endpoint_revenue_sats",
			"Revenue in satoshis by endpoint", endpointLabels,
			nil,
		),
		endpointRequests: prometheus.NewDesc(
			metricPrefix+"endpoint_requests",
			"Admitted requests by endpoint", endpointLabels, nil,
		),
		endpointPaid: prometheus.NewDesc(
			metricPrefix+"endpoint_paid",
			"Paid requests by endpoint", endpointLabels, nil,
		),
		endpointFree: prometheus.NewDesc(
			metricPrefix+"endpoint_free",
			"Free tier requests by endpoint", endpointLabels, nil,
		),
		paymentsPerMinute: prometheus.NewDesc(
			metricPrefix+"payments_per_minute",
			"Payments within the last rolling 60 seconds", nil,
			nil,
		),
		averagePayment: prometheus.NewDesc(
			metricPrefix+"average_payment_sats",
			"Average paid amount in satoshis", nil, nil,
		),
	}
}

// Describe sends all metric descriptors to the channel.
//
// NOTE: This is part of the prometheus.Collector interface.
func (c *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.revenueTotal
	ch <- c.requestsTotal
	ch <- c.paidTotal
	ch <- c.uniquePayers
	ch <- c.endpointRevenue
	ch <- c.endpointRequests
	ch <- c.endpointPaid
	ch <- c.endpointFree
	ch <- c.paymentsPerMinute
	ch <- c.averagePayment
}

// Collect takes a stats snapshot and renders it as metrics.
//
// NOTE: This is part of the prometheus.Collector interface.
func (c *statsCollector) Collect(ch chan<- prometheus.Metric) {
	snapshot := c.recorder.Snapshot()

	ch <- prometheus.MustNewConstMetric(
		c.revenueTotal, prometheus.CounterValue,
		float64(snapshot.TotalRevenue),
	)
	ch <- prometheus.MustNewConstMetric(
		c.requestsTotal, prometheus.CounterValue,
		float64(snapshot.TotalRequests),
	)
	ch <- prometheus.MustNewConstMetric(
		c.paidTotal, prometheus.CounterValue,
		float64(snapshot.TotalPaid),
	)
	ch <- prometheus.MustNewConstMetric(
		c.uniquePayers, prometheus.GaugeValue,
		float64(snapshot.UniquePayers),
	)

	for endpoint, endpointStats := range snapshot.Endpoints {
		ch <- prometheus.MustNewConstMetric(
			c.endpointRevenue, prometheus.GaugeValue,
			float64(endpointStats.Revenue), endpoint,
		)
		ch <- prometheus.MustNewConstMetric(
			c.endpointRequests, prometheus.GaugeValue,
			float64(endpointStats.Requests), endpoint,
		)
		ch <- prometheus.MustNewConstMetric(
			c.endpointPaid, prometheus.GaugeValue,
			float64(endpointStats.Paid), endpoint,
		)
		ch <- prometheus.MustNewConstMetric(
			c.endpointFree, prometheus.GaugeValue,
			float64(endpointStats.Free), endpoint,
		)
	}

	ch <- prometheus.MustNewConstMetric(
		c.paymentsPerMinute, prometheus.GaugeValue,
		float64(c.recorder.PaymentsPerMinute()),
	)

	// The average is only meaningful once something was paid.
	if snapshot.TotalPaid > 0 {
		ch <- prometheus.MustNewConstMetric(
			c.averagePayment, prometheus.GaugeValue,
			float64(snapshot.TotalRevenue)/
				float64(snapshot.TotalPaid),
		)
	}
}
