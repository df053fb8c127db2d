package monitor

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/dex-sp/instruments"
)

const (
	kindSend  = "send"
	kindQuery = "query"
	kindClose = "close"
	kindDial  = "dial"
)

// Monitor owns a private registry so several sessions in one process (or
// tests) never collide on the default one.
type Monitor struct {
	log      logrus.FieldLogger
	registry *prometheus.Registry

	Commands         *prometheus.CounterVec
	TransportErrors  *prometheus.CounterVec
	RoundTripSeconds prometheus.Histogram

	SessionsOpen prometheus.Gauge
}

func NewMonitor(log logrus.FieldLogger) *Monitor {
	m := &Monitor{
		log:      log,
		registry: prometheus.NewRegistry(),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ceyear_commands_total",
			Help: "Commands sent to the instrument",
		}, []string{"kind"}),
		TransportErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ceyear_transport_errors_total",
			Help: "Failed transport operations",
		}, []string{"kind"}),
		RoundTripSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ceyear_roundtrip_duration_seconds",
			Help:    "Duration of one send or query",
			Buckets: prometheus.DefBuckets,
		}),
		SessionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ceyear_sessions_open",
			Help: "Instrument sessions currently open",
		}),
	}

	m.registry.MustRegister(
		m.Commands,
		m.TransportErrors,
		m.RoundTripSeconds,
		m.SessionsOpen,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry exposes the metrics for scraping or testing.
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves /metrics and /health.
func (m *Monitor) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

// StartMetricsServer serves Handler on port in the background.
func (m *Monitor) StartMetricsServer(port int) *http.Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	m.log.Infof("metrics server listening on %s", srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.log.Errorf("metrics server: %v", err)
		}
	}()
	return srv
}

// InstrumentDialer wraps d so every transport it opens is measured.
func (m *Monitor) InstrumentDialer(d instruments.Dialer) instruments.Dialer {
	return instruments.DialerFunc(func(addr instruments.Address) (instruments.Transport, error) {
		t, err := d.Dial(addr)
		if err != nil {
			m.TransportErrors.WithLabelValues(kindDial).Inc()
			return nil, err
		}
		return m.InstrumentTransport(t), nil
	})
}

// InstrumentTransport counts and times the operations of t and tracks it as
// an open session until Close.
func (m *Monitor) InstrumentTransport(t instruments.Transport) instruments.Transport {
	m.SessionsOpen.Inc()
	return &transport{next: t, m: m}
}

type transport struct {
	next   instruments.Transport
	m      *Monitor
	closed bool
}

func (t *transport) Send(cmd string) error {
	start := time.Now()
	err := t.next.Send(cmd)
	t.observe(kindSend, start, err)
	return err
}

func (t *transport) Query(cmd string) (string, error) {
	start := time.Now()
	response, err := t.next.Query(cmd)
	t.observe(kindQuery, start, err)
	return response, err
}

func (t *transport) Close() error {
	if !t.closed {
		t.closed = true
		t.m.SessionsOpen.Dec()
	}
	err := t.next.Close()
	if err != nil {
		t.m.TransportErrors.WithLabelValues(kindClose).Inc()
	}
	return err
}

func (t *transport) observe(kind string, start time.Time, err error) {
	t.m.Commands.WithLabelValues(kind).Inc()
	t.m.RoundTripSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		t.m.TransportErrors.WithLabelValues(kind).Inc()
	}
}
