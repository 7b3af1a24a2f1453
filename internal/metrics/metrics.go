package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Enforcement metrics
	BlockActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kidlock_block_actions_total",
			Help: "Total block actions triggered by the enforcement monitor",
		},
		[]string{"package"},
	)

	MonitorCycleErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kidlock_monitor_cycle_errors_total",
			Help: "Monitor evaluation cycles that failed and were skipped",
		},
	)

	RemainingMinutes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kidlock_remaining_minutes",
			Help: "Remaining screen-time minutes at the last evaluation",
		},
	)

	// Budget metrics
	DailyResetsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kidlock_daily_resets_total",
			Help: "Daily budget resets performed",
		},
	)

	UsageMinutesToday = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kidlock_usage_minutes_today",
			Help: "Tracked foreground minutes used today at the last evaluation",
		},
	)

	// Redemption metrics
	RedemptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kidlock_redemptions_total",
			Help: "Redemption attempts by outcome",
		},
		[]string{"outcome"},
	)

	CodesGeneratedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kidlock_codes_generated_total",
			Help: "Redemption codes generated",
		},
	)
)

func init() {
	prometheus.MustRegister(
		BlockActionsTotal,
		MonitorCycleErrors,
		RemainingMinutes,
		DailyResetsTotal,
		UsageMinutesToday,
		RedemptionsTotal,
		CodesGeneratedTotal,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
