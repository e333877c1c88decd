package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the Prometheus registry for the game server.
type Metrics struct {
	registry *prometheus.Registry
	server   *http.Server
	port     int

	// Game metrics
	sessionsStarted  *prometheus.CounterVec
	sessionsFinished *prometheus.CounterVec
	liveSessions     prometheus.Gauge
	clicks           *prometheus.CounterVec
	finalScore       *prometheus.HistogramVec
	rewardsPaid      *prometheus.CounterVec
	resultsRejected  *prometheus.CounterVec
	achievements     *prometheus.CounterVec

	// Tournament metrics
	tournamentEntries *prometheus.CounterVec
	tournamentPrizes  *prometheus.CounterVec

	// Wallet metrics
	walletTx         *prometheus.CounterVec
	walletTxDuration *prometheus.HistogramVec

	// HTTP metrics
	requestDuration *prometheus.HistogramVec
	requestCount    *prometheus.CounterVec
	errorCount      *prometheus.CounterVec
	wsConnections   prometheus.Gauge

	// System metrics
	goroutineCount prometheus.Gauge
	memoryUsage    prometheus.Gauge
}

func NewMetrics(port int) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		port:     port,
	}
	m.initializeMetrics()
	m.registerMetrics()
	return m
}

func (m *Metrics) initializeMetrics() {
	m.sessionsStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coinrush_sessions_started_total",
		Help: "Sessions started, by mode",
	}, []string{"mode"})

	m.sessionsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coinrush_sessions_finished_total",
		Help: "Sessions finished, by mode and final phase",
	}, []string{"mode", "phase"})

	m.liveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "coinrush_live_sessions",
		Help: "Sessions currently owned by the arena",
	})

	m.clicks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coinrush_clicks_total",
		Help: "Token clicks, by token kind; kind=miss for clicks on absent tokens",
	}, []string{"kind"})

	m.finalScore = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coinrush_final_score",
		Help:    "Final score of ended sessions",
		Buckets: []float64{0, 25, 50, 100, 200, 350, 500, 750, 1000, 1500, 2500},
	}, []string{"mode"})

	m.rewardsPaid = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coinrush_rewards_paid_total",
		Help: "Reward tokens paid out, by mode",
	}, []string{"mode"})

	m.tournamentEntries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coinrush_tournament_entries_total",
		Help: "Paid tournament entries, by series",
	}, []string{"series"})

	m.tournamentPrizes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coinrush_tournament_prizes_total",
		Help: "Tournament prize tokens paid out, by series",
	}, []string{"series"})

	m.resultsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coinrush_results_rejected_total",
		Help: "Results withheld by validation, by failed check",
	}, []string{"mode", "check"})

	m.achievements = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coinrush_achievements_unlocked_total",
		Help: "Achievements unlocked during play",
	}, []string{"achievement"})

	m.walletTx = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coinrush_wallet_transactions_total",
		Help: "Simulated chain transactions, by kind and status",
	}, []string{"kind", "status"})

	m.walletTxDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coinrush_wallet_transaction_duration_seconds",
		Help:    "Time spent settling simulated transactions",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 1.5, 2, 3, 5},
	}, []string{"kind"})

	m.requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coinrush_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	m.requestCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coinrush_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "endpoint", "status"})

	m.errorCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coinrush_http_errors_total",
		Help: "Total number of HTTP errors",
	}, []string{"type", "endpoint"})

	m.wsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "coinrush_ws_connections",
		Help: "Open play-stream websocket connections",
	})

	m.goroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "coinrush_goroutines",
		Help: "Number of goroutines",
	})

	m.memoryUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "coinrush_memory_alloc_bytes",
		Help: "Heap bytes allocated",
	})
}

func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(
		m.sessionsStarted,
		m.sessionsFinished,
		m.liveSessions,
		m.clicks,
		m.finalScore,
		m.rewardsPaid,
		m.resultsRejected,
		m.achievements,
		m.tournamentEntries,
		m.tournamentPrizes,
		m.walletTx,
		m.walletTxDuration,
		m.requestDuration,
		m.requestCount,
		m.errorCount,
		m.wsConnections,
		m.goroutineCount,
		m.memoryUsage,
	)

	// Default Go metrics
	m.registry.MustRegister(collectors.NewGoCollector())
	m.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// Router serves /metrics and /health. health may be nil.
func (m *Metrics) Router(health func(ctx context.Context) map[string]any) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		body := map[string]any{"ok": true}
		if health != nil {
			body = health(req.Context())
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	})
	return r
}

func (m *Metrics) StartServer(health func(ctx context.Context) map[string]any) error {
	m.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", m.port),
		Handler:      m.Router(health),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	log.Printf("monitoring: metrics server starting on port %d", m.port)
	return m.server.ListenAndServe()
}

func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.server != nil {
		return m.server.Shutdown(ctx)
	}
	return nil
}

// Game metrics update methods

func (m *Metrics) SessionStarted(mode string) {
	m.sessionsStarted.WithLabelValues(mode).Inc()
}

func (m *Metrics) SessionFinished(mode, phase string, score int64) {
	m.sessionsFinished.WithLabelValues(mode, phase).Inc()
	if phase == "ended" {
		m.finalScore.WithLabelValues(mode).Observe(float64(score))
	}
}

func (m *Metrics) SetLiveSessions(n int) {
	m.liveSessions.Set(float64(n))
}

func (m *Metrics) Click(kind string, found bool) {
	if !found {
		kind = "miss"
	}
	m.clicks.WithLabelValues(kind).Inc()
}

func (m *Metrics) RewardPaid(mode string, amount int64) {
	m.rewardsPaid.WithLabelValues(mode).Add(float64(amount))
}

func (m *Metrics) TournamentJoined(series string) {
	m.tournamentEntries.WithLabelValues(series).Inc()
}

func (m *Metrics) TournamentPrize(series string, amount int64) {
	m.tournamentPrizes.WithLabelValues(series).Add(float64(amount))
}

func (m *Metrics) ResultRejected(mode string, checks []string) {
	for _, c := range checks {
		m.resultsRejected.WithLabelValues(mode, c).Inc()
	}
}

func (m *Metrics) AchievementUnlocked(name string) {
	m.achievements.WithLabelValues(name).Inc()
}

// Wallet metrics

func (m *Metrics) WalletTx(kind, status string, d time.Duration) {
	m.walletTx.WithLabelValues(kind, status).Inc()
	m.walletTxDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// HTTP metrics

func (m *Metrics) RecordRequest(method, endpoint string, status int, d time.Duration) {
	s := strconv.Itoa(status)
	m.requestCount.WithLabelValues(method, endpoint, s).Inc()
	m.requestDuration.WithLabelValues(method, endpoint, s).Observe(d.Seconds())
	if status >= 400 {
		errorType := "client_error"
		if status >= 500 {
			errorType = "server_error"
		}
		m.errorCount.WithLabelValues(errorType, endpoint).Inc()
	}
}

func (m *Metrics) WSConnected()    { m.wsConnections.Inc() }
func (m *Metrics) WSDisconnected() { m.wsConnections.Dec() }

func (m *Metrics) CollectSystemMetrics() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.memoryUsage.Set(float64(ms.Alloc))
	m.goroutineCount.Set(float64(runtime.NumGoroutine()))
}

// RunCollector refreshes system metrics until ctx is done.
func (m *Metrics) RunCollector(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		m.CollectSystemMetrics()
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// Gather exposes the registry for tests and summaries.
func (m *Metrics) Gather() (map[string]float64, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for _, mf := range families {
		var total float64
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				total += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				total += metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				total += float64(metric.GetHistogram().GetSampleCount())
			}
		}
		out[mf.GetName()] = total
	}
	return out, nil
}
