package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gridpilot/gridpilot/pkg/cloud"
	"github.com/gridpilot/gridpilot/pkg/forecast"
	"github.com/gridpilot/gridpilot/pkg/log"

	"github.com/NYTimes/gziphandler"
	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	batterySoC = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gridpilot_battery_soc_percent",
		Help: "Battery state of charge",
	})
	batteryResidual = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gridpilot_battery_residual_kwh",
		Help: "Energy remaining in the battery",
	})
	batteryCapacity = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gridpilot_battery_capacity_kwh",
		Help: "Battery capacity derived from residual and state of charge",
	})
	batteryAvailable = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gridpilot_battery_available_kwh",
		Help: "Energy available above the grid reserve",
	})
	forecastTomorrow = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gridpilot_forecast_tomorrow_kwh",
		Help: "Solar yield forecast for tomorrow",
	})
	forecastAverage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gridpilot_forecast_average_kwh",
		Help: "Mean daily solar yield over the forecast window",
	})
	scrapeErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gridpilot_refresh_errors_total",
		Help: "Failed refreshes of cloud or forecast data",
	})
)

func refresh(ctx context.Context, fox *cloud.FoxESS, sol *forecast.Solcast) {
	battery, err := fox.GetBatteryState(ctx)
	if err != nil {
		scrapeErrors.Inc()
		log.Ctx(ctx).WarnContext(ctx, "failed to read battery state", "error", err)
	} else {
		e := battery.Energy()
		batterySoC.Set(battery.SoCPercent)
		batteryResidual.Set(e.ResidualKWh)
		batteryCapacity.Set(e.CapacityKWh)
		batteryAvailable.Set(e.AvailableKWh)
	}

	yield, err := sol.Fetch(ctx, 7, forecast.ReloadIfStale)
	if err != nil {
		scrapeErrors.Inc()
		log.Ctx(ctx).WarnContext(ctx, "failed to fetch forecast", "error", err)
		return
	}
	forecastAverage.Set(yield.AverageKWh)
	if v, ok := yield.ForecastTomorrow(); ok {
		forecastTomorrow.Set(v)
	}
}

func main() {
	fox := cloud.Configured()
	sol := forecast.Configured()

	listen := lflag.String("listen", ":9812", "Address to serve /metrics on")
	interval := lflag.Duration("refresh", 5*time.Minute, "How often to refresh battery metrics")
	deviceSN := lflag.String("device-sn", "", "Inverter serial number prefix, for accounts with several devices")

	lflag.Configure()

	var level slog.Level
	// lflag automatically sets llog's level, but we need to set the slog level
	switch llog.GetLevel() {
	case llog.DebugLevel:
		level = slog.LevelDebug
	case llog.InfoLevel:
		level = slog.LevelInfo
	case llog.WarnLevel:
		level = slog.LevelWarn
	case llog.ErrorLevel:
		level = slog.LevelError
	default:
		panic(fmt.Errorf("unknown log level: %s", llog.GetLevel().String()))
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if _, err := fox.ResolveDevice(ctx, *deviceSN); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to resolve device", "error", err)
		os.Exit(1)
	}

	prometheus.MustRegister(batterySoC, batteryResidual, batteryCapacity,
		batteryAvailable, forecastTomorrow, forecastAverage, scrapeErrors)

	go func() {
		refresh(ctx, fox, sol)
		t := time.NewTicker(*interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				refresh(ctx, fox, sol)
			}
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: *listen, Handler: gziphandler.GzipHandler(mux)}
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Ctx(ctx).InfoContext(ctx, "serving metrics", "listen", *listen)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Ctx(ctx).ErrorContext(ctx, "server failed", "error", err)
		os.Exit(1)
	}
}
