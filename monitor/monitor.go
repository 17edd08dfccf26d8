// monitor/monitor.go
package monitor

import (
	"errors"
	"expvar"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wfunc/thegame/coordinator"
)

type Metrics struct {
	ConnectedSockets prometheus.Gauge
	BoundPlayers     prometheus.Gauge
	ActiveRooms      prometheus.Gauge
	RoomsCreated     prometheus.Counter
	RoomsDestroyed   prometheus.Counter
	GamesStarted     prometheus.Counter
	SpectatorsKicked prometheus.Counter
	Refusals         *prometheus.CounterVec
	EventsReceived   *prometheus.CounterVec
	EventLatency     prometheus.Histogram
}

func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectedSockets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_sockets",
			Help:      "Number of open websocket connections",
		}),
		BoundPlayers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bound_players",
			Help:      "Number of connections that have claimed a player name",
		}),
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Number of active rooms",
		}),
		RoomsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_created_total",
			Help:      "Total number of rooms created",
		}),
		RoomsDestroyed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_destroyed_total",
			Help:      "Total number of rooms removed after emptying",
		}),
		GamesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_started_total",
			Help:      "Total number of games started",
		}),
		SpectatorsKicked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spectators_kicked_total",
			Help:      "Total number of spectators evicted by room cleanup",
		}),
		Refusals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refusals_total",
			Help:      "Requests refused by the room coordinator",
		}, []string{"op", "reason"}),
		EventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Total number of inbound events",
		}, []string{"event"}),
		EventLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_latency_seconds",
			Help:      "Inbound event processing latency",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
	}

	reg.MustRegister(
		m.ConnectedSockets,
		m.BoundPlayers,
		m.ActiveRooms,
		m.RoomsCreated,
		m.RoomsDestroyed,
		m.GamesStarted,
		m.SpectatorsKicked,
		m.Refusals,
		m.EventsReceived,
		m.EventLatency,
	)

	return m
}

// Monitor records server metrics. It also observes the coordinator.
type Monitor struct {
	coordinator.NopObserver

	metrics      *Metrics
	gatherer     prometheus.Gatherer
	startTime    time.Time
	requestCount int64
	mutex        sync.Mutex
}

var _ coordinator.Observer = (*Monitor)(nil)

func NewMonitor(namespace string, reg *prometheus.Registry) *Monitor {
	return &Monitor{
		metrics:   NewMetrics(namespace, reg),
		gatherer:  reg,
		startTime: time.Now(),
	}
}

func (m *Monitor) Metrics() *Metrics {
	return m.metrics
}

// Handler serves /metrics and /debug/vars.
func (m *Monitor) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/debug/vars", expvar.Handler())
	return mux
}

var publishOnce sync.Once

// StartServer serves metrics on addr in the background.
func (m *Monitor) StartServer(addr string, onError func(error)) *http.Server {
	// expvar names are process global
	publishOnce.Do(func() {
		expvar.Publish("uptime", expvar.Func(func() interface{} {
			return time.Since(m.startTime).Seconds()
		}))
		expvar.Publish("requests", expvar.Func(func() interface{} {
			return m.RequestCount()
		}))
	})

	srv := &http.Server{Addr: addr, Handler: m.Handler()}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			onError(err)
		}
	}()
	return srv
}

func (m *Monitor) IncConnectedSockets() {
	m.metrics.ConnectedSockets.Inc()
}

func (m *Monitor) DecConnectedSockets() {
	m.metrics.ConnectedSockets.Dec()
}

func (m *Monitor) SetBoundPlayers(count int) {
	m.metrics.BoundPlayers.Set(float64(count))
}

func (m *Monitor) SetActiveRooms(count int) {
	m.metrics.ActiveRooms.Set(float64(count))
}

func (m *Monitor) IncEventsReceived(event string) {
	m.metrics.EventsReceived.WithLabelValues(event).Inc()
	m.mutex.Lock()
	m.requestCount++
	m.mutex.Unlock()
}

func (m *Monitor) RequestCount() int64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.requestCount
}

func (m *Monitor) ObserveEventLatency(duration time.Duration) {
	m.metrics.EventLatency.Observe(duration.Seconds())
}

// --- coordinator.Observer ---

func (m *Monitor) RoomCreated(string) {
	m.metrics.RoomsCreated.Inc()
	m.metrics.ActiveRooms.Inc()
}

func (m *Monitor) RoomDestroyed(string) {
	m.metrics.RoomsDestroyed.Inc()
	m.metrics.ActiveRooms.Dec()
}

func (m *Monitor) SpectatorKicked(string, string) {
	m.metrics.SpectatorsKicked.Inc()
}

func (m *Monitor) GameStarted(string, []string) {
	m.metrics.GamesStarted.Inc()
}

func (m *Monitor) Refused(op coordinator.Op, _, _ string, err error) {
	m.metrics.Refusals.WithLabelValues(string(op), reason(err)).Inc()
}

// reason maps an error to a bounded label value.
func reason(err error) string {
	for _, known := range []error{
		coordinator.ErrRoomNotFound,
		coordinator.ErrInvalidRoomName,
		coordinator.ErrRoomExists,
		coordinator.ErrRoomLimitReached,
		coordinator.ErrRoomFull,
		coordinator.ErrSpectatorsFull,
		coordinator.ErrGameInProgress,
		coordinator.ErrAlreadyInRoom,
		coordinator.ErrNotInRoom,
		coordinator.ErrGameNotStarted,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "other"
}
