package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "github.com/transistorgit/pvboiler2mqtt/internal/adapter/actor"
	"github.com/transistorgit/pvboiler2mqtt/internal/config"
	"github.com/transistorgit/pvboiler2mqtt/internal/core/actor"
	"github.com/transistorgit/pvboiler2mqtt/internal/core/domain"
	"github.com/transistorgit/pvboiler2mqtt/internal/core/port"
	"github.com/transistorgit/pvboiler2mqtt/internal/core/service"
	"github.com/transistorgit/pvboiler2mqtt/internal/procmon"
	"github.com/transistorgit/pvboiler2mqtt/internal/server"
	"github.com/transistorgit/pvboiler2mqtt/internal/settings"
	"github.com/transistorgit/pvboiler2mqtt/internal/util/actorutil"
	"github.com/transistorgit/pvboiler2mqtt/pkg/boiler_modbus"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	EXIT_OK               = 0
	EXIT_DEVICE_NOT_FOUND = 1
	EXIT_BUS_ERROR        = 2
	EXIT_CONFIG_ERROR     = 3
	EXIT_NO_SERIAL_PORT   = 4
	EXIT_FATAL_FAULT      = 6
)

func gracefulShutdown(apiServer *http.Server, fatal <-chan error, exitCode *int, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal or a heater giving up.
	select {
	case <-ctx.Done():
		log.Println("shutting down gracefully, press Ctrl+C again to force")
	case err := <-fatal:
		log.Printf("device critical, exiting: %v", err)
		*exitCode = EXIT_FATAL_FAULT
	}

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {
	os.Exit(run())
}

func run() int {

	// load and print config
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		slog.Error("config errors", "error", err)
		if errors.Is(err, config.ErrNoSerialPort) {
			return EXIT_NO_SERIAL_PORT
		}
		return EXIT_CONFIG_ERROR
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// open the shared serial line
	bus, err := boiler_modbus.CreateRTUBus(boiler_modbus.BusConfig{
		Port:     cfg.Serial.Port,
		Baudrate: cfg.Serial.Baudrate,
		Timeout:  cfg.SerialTimeout(),
	}, logger, nil)
	if err == nil {
		err = bus.Open()
	}
	if err != nil {
		logger.Error("could not open serial bus", zap.String("port", cfg.Serial.Port), zap.Error(err))
		return EXIT_BUS_ERROR
	}
	defer bus.Close()

	// persisted target temperature
	store := settings.NewStore(cfg.SettingsFile, settings.Settings{TargetTemperature: cfg.Heater.DefaultTargetTemperature})
	userSettings, err := store.Load()
	if err != nil {
		logger.Warn("could not load settings, using defaults", zap.Error(err))
	}

	loop, gridMeter, err := createControlLoop(ctx, cfg, bus, userSettings, logger)
	if err != nil {
		logger.Error("device setup failed", zap.Error(err))
		if errors.Is(err, domain.ErrDeviceNotFound) {
			return EXIT_DEVICE_NOT_FOUND
		}
		return EXIT_BUS_ERROR
	}

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	root := as.Root

	fatal := make(chan error, 1)
	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, modbusActorProvider(loop, gridMeter, logger), mqttActorProvider(cfg, logger),
			store, func(err error) {
				select {
				case fatal <- err:
				default:
				}
			}, logger)
	})
	pid, err := root.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		logger.Error("could not spawn master actor", zap.Error(err))
		return EXIT_CONFIG_ERROR
	}

	// periodic process stats
	monitor := procmon.New(procmon.DEFAULT_INTERVAL, func(ctx context.Context) (domain.GetControlStateResponse, error) {
		res, err := root.RequestFuture(pid, domain.GetControlStateRequest{}, 5*time.Second).Result()
		if err != nil {
			return domain.GetControlStateResponse{}, err
		}
		state, ok := res.(domain.GetControlStateResponse)
		if !ok {
			return domain.GetControlStateResponse{}, fmt.Errorf("unexpected response %T", res)
		}
		return state, nil
	}, logger)
	if err := monitor.Start(ctx); err != nil {
		logger.Warn("process monitor not started", zap.Error(err))
	}

	server := server.NewServer(*cfg, root, pid)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)
	exitCode := EXIT_OK

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, fatal, &exitCode, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		logger.Error("http server error", zap.Error(err))
		return EXIT_CONFIG_ERROR
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	monitor.Stop()
	root.Stop(pid)
	as.Shutdown()
	return exitCode
}

// createControlLoop identifies both devices. A missing inverter is only fatal
// when it is the surplus source.
func createControlLoop(ctx context.Context, cfg *config.Config, bus *boiler_modbus.Bus, userSettings settings.Settings,
	logger *zap.Logger) (*service.ControlLoop, *service.GridMeterSource, error) {

	heaterCfg := cfg.HeaterControlConfig()
	heaterCfg.TargetTemperature = userSettings.TargetTemperature
	heater := service.NewHeaterController(bus.Port(cfg.Heater.UnitId), heaterCfg, logger.With(zap.String("device", "heater")))
	if err := heater.Identify(ctx); err != nil {
		return nil, nil, err
	}

	inverter := service.NewInverterTelemetry(bus.Port(cfg.Inverter.UnitId), cfg.InverterTelemetryConfig(),
		logger.With(zap.String("device", "inverter")), service.SleepContext)
	if err := inverter.Identify(ctx); err != nil {
		if cfg.Control.SurplusSource == config.SURPLUS_SOURCE_INVERTER {
			return nil, nil, err
		}
		logger.Warn("inverter not found, running on grid meter only", zap.Error(err))
		inverter = nil
	}

	var gridMeter *service.GridMeterSource
	var source port.TelemetrySource
	if cfg.Control.SurplusSource == config.SURPLUS_SOURCE_GRID_METER {
		gridMeter = service.NewGridMeterSource(cfg.GridMeterMaxAge(), nil)
		source = gridMeter
	}
	return service.NewControlLoop(heater, inverter, source, nil), gridMeter, nil
}

func modbusActorProvider(loop *service.ControlLoop, gridMeter *service.GridMeterSource, logger *zap.Logger) actor.ModbusActorProvider {
	return func() *adactor.ModbusActor {
		return adactor.NewModbusActor(loop, gridMeter, logger)
	}
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, es, logger)
	}
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}
