package server

import (
	"net/http"
	"time"

	"github.com/transistorgit/pvboiler2mqtt/internal/core/domain"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type heaterState struct {
	Connected          bool     `json:"connected"`
	Heartbeat          uint8    `json:"heartbeat"`
	CommandedBits      [3]bool  `json:"commanded_bits"`
	CommandedPowerWatt int      `json:"commanded_power_watt"`
	LastSurplus        float64  `json:"last_surplus"`
	LastSwitchTime     string   `json:"last_switch_time,omitempty"`
	CurrentTemperature *float64 `json:"current_temperature"`
	CurrentPower       *float64 `json:"current_power"`
	OperationMode      string   `json:"operation_mode,omitempty"`
	FaultCount         uint     `json:"fault_count"`
	TargetTemperature  float64  `json:"target_temperature"`
}

type inverterState struct {
	ActivePowerWatt float64 `json:"active_power_watt"`
	EnergyTodayKWh  float64 `json:"energy_today_kwh"`
	EnergyTotalKWh  float64 `json:"energy_total_kwh"`
	TotalCurrent    float64 `json:"total_current"`
	Status          uint16  `json:"status"`
	FailedRegisters int     `json:"failed_registers"`
}

type stateResponse struct {
	Ticks      uint64         `json:"ticks"`
	Overruns   uint64         `json:"overruns"`
	Faulted    bool           `json:"faulted"`
	UpdatedAt  string         `json:"updated_at,omitempty"`
	Surplus    *float64       `json:"surplus"`
	TickMillis *int64         `json:"tick_millis,omitempty"`
	Heater     *heaterState   `json:"heater,omitempty"`
	Inverter   *inverterState `json:"inverter,omitempty"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/api/state", s.StateHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) StateHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetControlStateRequest{}, 5*time.Second).Result()
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	response, ok := res.(domain.GetControlStateResponse)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "unexpected response")
	}
	return c.JSON(http.StatusOK, toStateResponse(response))
}

func toStateResponse(r domain.GetControlStateResponse) stateResponse {
	resp := stateResponse{
		Ticks:    r.Ticks,
		Overruns: r.Overruns,
		Faulted:  r.Faulted,
	}
	if !r.UpdatedAt.IsZero() {
		resp.UpdatedAt = r.UpdatedAt.Format(time.RFC3339)
	}
	if r.Last == nil {
		return resp
	}

	surplus := r.Last.Surplus
	resp.Surplus = &surplus
	tick := r.Last.Elapsed.Milliseconds()
	resp.TickMillis = &tick

	h := r.Last.Heater
	resp.Heater = &heaterState{
		Connected:          h.Connected,
		Heartbeat:          h.Heartbeat,
		CommandedBits:      h.CommandedBits,
		CommandedPowerWatt: h.CommandedBits.Watts(),
		LastSurplus:        h.LastSurplus,
		CurrentTemperature: h.CurrentTemperature,
		CurrentPower:       h.CurrentPower,
		FaultCount:         h.FaultCount,
		TargetTemperature:  h.TargetTemperature,
	}
	if !h.LastSwitchTime.IsZero() {
		resp.Heater.LastSwitchTime = h.LastSwitchTime.Format(time.RFC3339)
	}
	if h.Status != nil {
		resp.Heater.OperationMode = h.Status.String()
	}

	if inv := r.Last.Inverter; inv != nil {
		resp.Inverter = &inverterState{
			ActivePowerWatt: inv.ActivePowerWatt,
			EnergyTodayKWh:  inv.EnergyTodayKWh,
			EnergyTotalKWh:  inv.EnergyTotalKWh,
			TotalCurrent:    inv.TotalCurrent,
			Status:          r.Last.InverterStatus,
			FailedRegisters: inv.FailedRegisters,
		}
	}
	return resp
}
