package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gridpilot/gridpilot/pkg/cloud"
	"github.com/gridpilot/gridpilot/pkg/forecast"
	"github.com/gridpilot/gridpilot/pkg/log"
	"github.com/gridpilot/gridpilot/pkg/pvoutput"
	"github.com/gridpilot/gridpilot/pkg/scheduler"
	"github.com/gridpilot/gridpilot/pkg/tariff"
	"github.com/gridpilot/gridpilot/pkg/types"

	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"
)

func main() {
	// init packages
	fox := cloud.Configured()
	sol := forecast.Configured()
	pv := pvoutput.Configured()
	cfg := scheduler.Configured()

	tariffName := lflag.String("tariff", "Octopus Flux", "Time-of-use tariff (prefix match)")
	deviceSN := lflag.String("device-sn", "", "Inverter serial number prefix, for accounts with several devices")
	uploadDate := lflag.String("pvoutput-date", "", "Also upload this date (YYYY-MM-DD, or 'today') to pvoutput.org")
	uploadTOU := lflag.Bool("pvoutput-tou", false, "Split the pvoutput upload into time-of-use buckets")

	// parse flags
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
	slog.Debug("logger configured", slog.String("level", level.String()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	trf, err := tariff.ByName(*tariffName)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "unknown tariff", "name", *tariffName, "error", err)
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "using tariff", "name", trf.Name)

	device, err := fox.ResolveDevice(ctx, *deviceSN)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to resolve device", "error", err)
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "resolved device",
		"sn", device.SerialNumber, "model", device.Model, "powerKW", device.RatedPowerKW)

	sched := scheduler.New(fox, &trf, sol)
	res, err := sched.Run(ctx, *cfg)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "scheduling run failed", "error", err)
		os.Exit(1)
	}
	if res.Skipped {
		return
	}
	for _, p := range res.Plan.Periods {
		log.Ctx(ctx).InfoContext(ctx, "charge period", "period", p.String())
	}

	if *uploadDate != "" {
		if !pv.Enabled() {
			log.Ctx(ctx).ErrorContext(ctx, "pvoutput upload requested without credentials")
			os.Exit(1)
		}
		date := *uploadDate
		if date == "today" {
			date = time.Now().Format(types.DateFormat)
		}
		csv, err := pvoutput.Build(ctx, fox, &trf, date, *uploadTOU)
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to build pvoutput record", "error", err)
			os.Exit(1)
		}
		if err := pv.Upload(ctx, csv); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "pvoutput upload failed", "error", err)
			os.Exit(1)
		}
	}
}
