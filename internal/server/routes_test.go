package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/transistorgit/pvboiler2mqtt/internal/config"
	"github.com/transistorgit/pvboiler2mqtt/internal/core/domain"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, healthy bool, state domain.GetControlStateResponse) http.Handler {
	t.Helper()
	as := actor.NewActorSystem()
	t.Cleanup(as.Shutdown)
	master := as.Root.Spawn(actor.PropsFromFunc(func(ctx actor.Context) {
		switch ctx.Message().(type) {
		case domain.ActorHealthRequest:
			ctx.Respond(domain.ActorHealthResponse{Id: domain.ACTOR_ID_MASTER, Healthy: healthy})
		case domain.GetControlStateRequest:
			ctx.Respond(state)
		}
	}))
	s := &Server{port: 8080, rootContext: as.Root, masterActor: master}
	return s.RegisterRoutes()
}

func TestHealthCheckHandler(t *testing.T) {
	tests := []struct {
		healthy bool
		code    int
		body    string
	}{
		{true, http.StatusOK, "health_check: OK"},
		{false, http.StatusServiceUnavailable, "health_check: FAIL"},
	}
	for _, tt := range tests {
		h := newTestServer(t, tt.healthy, domain.GetControlStateResponse{})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
		assert.Equal(t, tt.code, rec.Code)
		assert.Equal(t, tt.body, rec.Body.String())
	}
}

func TestStateHandler(t *testing.T) {
	temp := 47.5
	mode := domain.HEATER_MODE_AUTO
	h := newTestServer(t, true, domain.GetControlStateResponse{
		Ticks:     12,
		Overruns:  1,
		UpdatedAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		Last: &domain.ControlTickResult{
			Surplus: 2650,
			Heater: domain.HeaterSnapshot{
				Connected:          true,
				CommandedBits:      domain.RelayBits{true, false, true},
				CurrentTemperature: &temp,
				Status:             &mode,
				TargetTemperature:  60,
			},
			Inverter:       &domain.InverterReading{ActivePowerWatt: 2650},
			InverterStatus: 3,
			Elapsed:        120 * time.Millisecond,
		},
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/state", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 12.0, body["ticks"])
	assert.Equal(t, 2650.0, body["surplus"])
	assert.Equal(t, 120.0, body["tick_millis"])
	assert.Equal(t, "2024-06-01T12:00:00Z", body["updated_at"])

	heater := body["heater"].(map[string]any)
	assert.Equal(t, 2500.0, heater["commanded_power_watt"])
	assert.Equal(t, []any{true, false, true}, heater["commanded_bits"])
	assert.Equal(t, 47.5, heater["current_temperature"])
	assert.Equal(t, "auto", heater["operation_mode"])

	inverter := body["inverter"].(map[string]any)
	assert.Equal(t, 3.0, inverter["status"])
}

func TestStateHandlerBeforeFirstTick(t *testing.T) {
	h := newTestServer(t, true, domain.GetControlStateResponse{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/state", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Nil(t, body["surplus"])
	assert.NotContains(t, body, "heater")
}

func TestNewServer(t *testing.T) {
	cfg := config.Config{Port: 9090}
	srv := NewServer(cfg, nil, nil)
	assert.Equal(t, ":9090", srv.Addr)
}
