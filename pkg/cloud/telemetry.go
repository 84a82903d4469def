package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/gridpilot/gridpilot/pkg/energy"
	"github.com/gridpilot/gridpilot/pkg/log"
	"github.com/gridpilot/gridpilot/pkg/types"
)

const sampleTimeLayout = "2006-01-02 15:04:05"

// queryDate is the calendar timestamp form the cloud expects.
type queryDate struct {
	Year   int `json:"year"`
	Month  int `json:"month"`
	Day    int `json:"day"`
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
	Second int `json:"second"`
}

func toQueryDate(t time.Time) queryDate {
	return queryDate{
		Year:   t.Year(),
		Month:  int(t.Month()),
		Day:    t.Day(),
		Hour:   t.Hour(),
		Minute: t.Minute(),
		Second: t.Second(),
	}
}

// parseDate accepts "YYYY-MM-DD" with an optional " HH:MM:SS" suffix.
func parseDate(s string) (time.Time, error) {
	if len(s) == len(types.DateFormat) {
		return time.ParseInLocation(types.DateFormat, s, time.Local)
	}
	return time.ParseInLocation(sampleTimeLayout, s, time.Local)
}

type batteryInfoResult struct {
	SoC      float64 `json:"soc"`
	Residual float64 `json:"residual"`
}

type minSoCResult struct {
	MinSoC     float64 `json:"minSoc"`
	MinGridSoC float64 `json:"minGridSoc"`
}

// GetBatteryState implements Accessor, merging the battery info and
// min-SoC settings endpoints.
func (f *FoxESS) GetBatteryState(ctx context.Context) (types.BatteryState, error) {
	device, err := f.requireDevice(ctx)
	if err != nil {
		return types.BatteryState{}, err
	}
	if err := f.ensureToken(ctx); err != nil {
		return types.BatteryState{}, err
	}

	req, err := f.newRequest(ctx, "GET", "c/v0/device/battery/info",
		url.Values{"id": {device.ID}}, nil)
	if err != nil {
		return types.BatteryState{}, err
	}
	var info batteryInfoResult
	if err := f.doRequest(req, &info); err != nil {
		return types.BatteryState{}, err
	}

	req, err = f.newRequest(ctx, "GET", "c/v0/device/battery/soc/get",
		url.Values{"sn": {device.SerialNumber}}, nil)
	if err != nil {
		return types.BatteryState{}, err
	}
	var soc minSoCResult
	if err := f.doRequest(req, &soc); err != nil {
		return types.BatteryState{}, err
	}

	return types.BatteryState{
		SoCPercent:        info.SoC,
		ResidualWh:        info.Residual,
		MinSoCPercent:     soc.MinSoC,
		MinGridSoCPercent: soc.MinGridSoC,
	}, nil
}

// SetMinSoC writes the minimum SoC settings. Both values are required and
// validated before any network call.
func (f *FoxESS) SetMinSoC(ctx context.Context, minGridSoC, minSoC float64) error {
	if minGridSoC < 0 || minGridSoC > 100 || minSoC < 0 || minSoC > 100 {
		return fmt.Errorf("min soc values must be 0-100, got grid=%v soc=%v", minGridSoC, minSoC)
	}
	device, err := f.requireDevice(ctx)
	if err != nil {
		return err
	}
	if err := f.ensureToken(ctx); err != nil {
		return err
	}
	req, err := f.newRequest(ctx, "POST", "c/v0/device/battery/soc/set", nil, map[string]any{
		"sn":         device.SerialNumber,
		"minGridSoc": minGridSoC,
		"minSoc":     minSoC,
	})
	if err != nil {
		return err
	}
	return f.doRequest(req, nil)
}

// chargeTime is the wire form of one charging window.
type chargeTime struct {
	EnableCharge bool       `json:"enableCharge"`
	EnableGrid   bool       `json:"enableGrid"`
	StartTime    hourMinute `json:"startTime"`
	EndTime      hourMinute `json:"endTime"`
}

type hourMinute struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

func (hm hourMinute) hours() float64 {
	return float64(hm.Hour) + float64(hm.Minute)/60
}

type chargeTimesResult struct {
	Times []chargeTime `json:"times"`
}

// GetChargePlan implements Accessor.
func (f *FoxESS) GetChargePlan(ctx context.Context) (types.ChargePlan, error) {
	device, err := f.requireDevice(ctx)
	if err != nil {
		return types.ChargePlan{}, err
	}
	if err := f.ensureToken(ctx); err != nil {
		return types.ChargePlan{}, err
	}
	req, err := f.newRequest(ctx, "GET", "c/v0/device/battery/time/get",
		url.Values{"sn": {device.SerialNumber}}, nil)
	if err != nil {
		return types.ChargePlan{}, err
	}
	var res chargeTimesResult
	if err := f.doRequest(req, &res); err != nil {
		return types.ChargePlan{}, err
	}
	if len(res.Times) != 2 {
		return types.ChargePlan{}, APIError{
			Endpoint: "c/v0/device/battery/time/get",
			Message:  fmt.Sprintf("expected 2 time periods, got %d", len(res.Times)),
		}
	}

	var plan types.ChargePlan
	for i, t := range res.Times {
		plan.Periods[i] = types.ChargePeriod{
			Start:      t.StartTime.hours(),
			End:        t.EndTime.hours(),
			GridCharge: t.EnableGrid,
		}
	}
	return plan, nil
}

// SetChargePlan implements Accessor. Zero-length periods are written in the
// disabled form with the grid flag cleared.
func (f *FoxESS) SetChargePlan(ctx context.Context, plan types.ChargePlan) error {
	device, err := f.requireDevice(ctx)
	if err != nil {
		return err
	}
	if err := f.ensureToken(ctx); err != nil {
		return err
	}

	plan = plan.Normalize()
	times := make([]chargeTime, 2)
	for i, p := range plan.Periods {
		sh, sm := types.HourMinute(p.Start)
		eh, em := types.HourMinute(p.End)
		times[i] = chargeTime{
			EnableCharge: true,
			EnableGrid:   p.GridCharge,
			StartTime:    hourMinute{Hour: sh, Minute: sm},
			EndTime:      hourMinute{Hour: eh, Minute: em},
		}
	}
	log.Ctx(ctx).InfoContext(ctx, "setting charge periods",
		slog.String("period1", plan.Periods[0].String()),
		slog.String("period2", plan.Periods[1].String()))

	req, err := f.newRequest(ctx, "POST", "c/v0/device/battery/time/set", nil, map[string]any{
		"sn":    device.SerialNumber,
		"times": times,
	})
	if err != nil {
		return err
	}
	return f.doRequest(req, nil)
}

// rawSample is the wire form of one raw data point.
type rawSample struct {
	Time  string  `json:"time"`
	Value float64 `json:"value"`
}

type rawSeriesResult struct {
	Variable string      `json:"variable"`
	Name     string      `json:"name"`
	Unit     string      `json:"unit"`
	Data     []rawSample `json:"data"`
}

// GetRawSeries implements Accessor. For a week span it fetches each of the
// 7 days ending no later than yesterday and returns one per-day series per
// variable.
func (f *FoxESS) GetRawSeries(ctx context.Context, vars []string, span types.Span, date string, opts energy.Options) ([]types.Series, error) {
	if span == types.SpanWeek {
		end := date
		if len(end) > len(types.DateFormat) {
			end = end[:len(types.DateFormat)]
		}
		dates, err := types.DateList(types.DateRange{End: end, Span: types.SpanWeek})
		if err != nil {
			return nil, err
		}
		var all []types.Series
		for _, d := range dates {
			day, err := f.GetRawSeries(ctx, vars, types.SpanDay, d, opts)
			if err != nil {
				return nil, err
			}
			all = append(all, day...)
		}
		return all, nil
	}

	device, err := f.requireDevice(ctx)
	if err != nil {
		return nil, err
	}
	if err := f.ensureToken(ctx); err != nil {
		return nil, err
	}

	if date == "" {
		if span == types.SpanHour {
			date = f.now().Format(sampleTimeLayout)
		} else {
			date = f.now().Format(types.DateFormat)
		}
	}
	begin, err := parseDate(date)
	if err != nil {
		return nil, err
	}
	if len(vars) == 0 {
		if len(f.rawVars) == 0 {
			return nil, errors.New("no variables requested and none known for device")
		}
		vars = make([]string, len(f.rawVars))
		for i, v := range f.rawVars {
			vars[i] = v.Variable
		}
	}

	req, err := f.newRequest(ctx, "POST", "c/v0/device/history/raw", nil, map[string]any{
		"deviceID":  device.ID,
		"variables": vars,
		"timespan":  string(span),
		"beginDate": toQueryDate(begin),
	})
	if err != nil {
		return nil, err
	}
	var res []rawSeriesResult
	if err := f.doRequest(req, &res); err != nil {
		return nil, err
	}

	series := make([]types.Series, len(res))
	for i, r := range res {
		s := types.Series{
			Variable: r.Variable,
			Name:     r.Name,
			Unit:     r.Unit,
			Date:     date[:len(types.DateFormat)],
			Data:     make([]types.Sample, 0, len(r.Data)),
		}
		for _, d := range r.Data {
			if len(d.Time) < len(sampleTimeLayout) {
				continue
			}
			ts, err := time.ParseInLocation(sampleTimeLayout, d.Time[:len(sampleTimeLayout)], time.Local)
			if err != nil {
				continue
			}
			s.Data = append(s.Data, types.Sample{Time: ts, Value: d.Value})
		}
		series[i] = s
	}

	if f.flipCT2 {
		opts.FlipCT2 = true
	}
	return energy.Summarize(series, opts), nil
}

type reportValue struct {
	Index int     `json:"index"`
	Value float64 `json:"value"`
}

type reportSeriesResult struct {
	Variable string        `json:"variable"`
	Data     []reportValue `json:"data"`
}

// GetReport implements Accessor. Results are pruned to completed
// sub-intervals; day totals are taken from the month-level side report and
// week reports splice in the previous month when the 7-day window straddles
// a month boundary.
func (f *FoxESS) GetReport(ctx context.Context, vars []string, period types.Span, date string) ([]types.ReportSeries, error) {
	device, err := f.requireDevice(ctx)
	if err != nil {
		return nil, err
	}
	if err := f.ensureToken(ctx); err != nil {
		return nil, err
	}

	now := f.now()
	if date == "" {
		date = now.AddDate(0, 0, -1).Format(types.DateFormat)
	}
	main, err := parseDate(date)
	if err != nil {
		return nil, err
	}
	if len(vars) == 0 {
		vars = ReportVars
	}

	fetch := func(reportType string, at time.Time) ([]reportSeriesResult, error) {
		req, err := f.newRequest(ctx, "POST", "c/v0/device/history/report", nil, map[string]any{
			"deviceID":   device.ID,
			"reportType": reportType,
			"variables":  vars,
			"queryDate":  toQueryDate(at),
		})
		if err != nil {
			return nil, err
		}
		var res []reportSeriesResult
		if err := f.doRequest(req, &res); err != nil {
			return nil, err
		}
		return res, nil
	}

	// the side report is the month-level report backing day totals and the
	// week splice across a month boundary
	var side []reportSeriesResult
	sideDate := main
	switch period {
	case types.SpanDay:
		side, err = fetch("month", sideDate)
	case types.SpanWeek:
		sideDate = main.AddDate(0, 0, -7)
		if sideDate.Month() != main.Month() {
			side, err = fetch("month", sideDate)
		}
	}
	if err != nil {
		return nil, err
	}

	reportType := string(period)
	if period == types.SpanWeek {
		reportType = "month"
	}
	res, err := fetch(reportType, main)
	if err != nil {
		return nil, err
	}

	out := make([]types.ReportSeries, len(res))
	for i, r := range res {
		values := make([]float64, len(r.Data))
		for j, d := range r.Data {
			values[j] = d.Value
		}

		var sideValues []float64
		if side != nil && i < len(side) {
			sideValues = make([]float64, len(side[i].Data))
			for j, d := range side[i].Data {
				sideValues[j] = d.Value
			}
		}

		if period == types.SpanWeek {
			values = energy.ReshapeWeek(values, sideValues, main, sideDate)
		} else {
			values = energy.PruneReport(values, period, main, now)
		}

		rs := types.ReportSeries{Variable: r.Variable, Date: date, Values: values}
		var dayTotal *float64
		if period == types.SpanDay && main.Day()-1 < len(sideValues) {
			dayTotal = &sideValues[main.Day()-1]
		}
		energy.SummarizeReport(&rs, dayTotal)
		out[i] = rs
	}
	return out, nil
}
