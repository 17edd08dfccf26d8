package monitor

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/thegame/coordinator"
)

func TestMonitor_CoordinatorEvents(t *testing.T) {
	m := NewMonitor("test", prometheus.NewRegistry())

	m.RoomCreated("x")
	m.RoomCreated("y")
	m.RoomDestroyed("x")
	m.SpectatorKicked("y", "carol")
	m.GameStarted("y", []string{"alice"})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.ActiveRooms))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.metrics.RoomsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.RoomsDestroyed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.SpectatorsKicked))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.GamesStarted))
}

func TestMonitor_Refusals(t *testing.T) {
	m := NewMonitor("test", prometheus.NewRegistry())

	m.Refused(coordinator.OpJoin, "x", "alice", coordinator.ErrRoomFull)
	m.Refused(coordinator.OpJoin, "x", "bob", coordinator.ErrRoomFull)
	m.Refused(coordinator.OpCreate, "", "", assert.AnError)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.metrics.Refusals.WithLabelValues("join", "room is full")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.Refusals.WithLabelValues("create", "other")))
}

func TestMonitor_Events(t *testing.T) {
	m := NewMonitor("test", prometheus.NewRegistry())

	m.IncEventsReceived("joinRoom")
	m.IncEventsReceived("joinRoom")
	m.ObserveEventLatency(time.Millisecond)
	m.IncConnectedSockets()
	m.IncConnectedSockets()
	m.DecConnectedSockets()
	m.SetBoundPlayers(4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.metrics.EventsReceived.WithLabelValues("joinRoom")))
	assert.Equal(t, int64(2), m.RequestCount())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.ConnectedSockets))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.metrics.BoundPlayers))
}

func TestMonitor_Handler(t *testing.T) {
	m := NewMonitor("test", prometheus.NewRegistry())
	m.RoomCreated("x")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "test_active_rooms 1"))
}
