package cloud

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gridpilot/gridpilot/pkg/common"
	"github.com/gridpilot/gridpilot/pkg/log"
	"github.com/gridpilot/gridpilot/pkg/types"
)

const (
	foxLoginPath = "c/v0/user/login"

	// tokens are valid for an hour; after that the next call logs in again
	foxTokenValidity = time.Hour

	// the cloud caps list endpoints at 100 entries
	foxPageSize = 100
)

// FoxESS implements Accessor against the FoxESS cloud. Identity (site,
// logger, device) is resolved once and reused for the life of the client.
// The client is not safe for concurrent use; every operation blocks until
// it completes.
type FoxESS struct {
	client      *http.Client
	baseURL     string
	username    string
	md5Password string
	lang        string
	flipCT2     bool

	token     string
	tokenTime time.Time

	site    *Site
	logger  *Logger
	device  *types.Device
	rawVars []Variable

	now func() time.Time
}

var _ Accessor = (*FoxESS)(nil)

// Site is one entry from the plant list.
type Site struct {
	Name      string `json:"name"`
	StationID string `json:"stationID"`
}

// Logger is one entry from the data-logger list.
type Logger struct {
	ModuleSN  string `json:"moduleSN"`
	PlantName string `json:"plantName"`
	StationID string `json:"stationID"`
}

// Variable describes one raw telemetry channel of a device.
type Variable struct {
	Name     string `json:"name"`
	Variable string `json:"variable"`
	Unit     string `json:"unit"`
}

// Firmware holds the current firmware versions of a device.
type Firmware struct {
	Master  string `json:"master"`
	Slave   string `json:"slave"`
	Manager string `json:"manager"`
}

// EarningsPeriod is the generation and earnings figure for one period.
type EarningsPeriod struct {
	Generation float64 `json:"generation"`
	Earnings   float64 `json:"earnings"`
}

// Earnings is the cloud's earnings summary for a device.
type Earnings struct {
	Currency string         `json:"currency"`
	PowerKW  float64        `json:"power"`
	Today    EarningsPeriod `json:"today"`
	Month    EarningsPeriod `json:"month"`
	Year     EarningsPeriod `json:"year"`
	Cumulate EarningsPeriod `json:"cumulate"`
}

// New creates a FoxESS client. The password is hashed immediately and only
// the hash is kept.
func New(username, password string) *FoxESS {
	hash := md5.Sum([]byte(password))
	return &FoxESS{
		client:      common.HTTPClient(time.Minute),
		baseURL:     "https://www.foxesscloud.com",
		username:    username,
		md5Password: hex.EncodeToString(hash[:]),
		lang:        "en",
		now:         time.Now,
	}
}

// SetFlipCT2 inverts the secondary meter channel before aggregation for
// installations with the sensor wired reversed.
func (f *FoxESS) SetFlipCT2(flip bool) {
	f.flipCT2 = flip
}

type foxResponse struct {
	Errno  int             `json:"errno"`
	Result json.RawMessage `json:"result"`
}

func (f *FoxESS) newRequest(ctx context.Context, method, endpoint string, params url.Values, body any) (*http.Request, error) {
	u, err := url.Parse(f.baseURL)
	if err != nil {
		return nil, err
	}
	u.Path, err = url.JoinPath(u.Path, endpoint)
	if err != nil {
		return nil, err
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}

	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("lang", f.lang)
	return req, nil
}

// doRequest executes the request and decodes the result envelope into dest.
// A non-200 status or a non-zero errno is an APIError.
func (f *FoxESS) doRequest(req *http.Request, dest any) error {
	isLogin := strings.HasSuffix(req.URL.Path, foxLoginPath)
	if !isLogin {
		req.Header.Set("token", f.token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		if isLogin {
			return AuthError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		}
		return APIError{
			Endpoint: req.URL.Path,
			Status:   resp.StatusCode,
			Message:  strings.TrimSpace(string(body)),
		}
	}

	var envelope foxResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", req.URL.Path, err)
	}
	if envelope.Errno != 0 {
		return APIError{Endpoint: req.URL.Path, Status: resp.StatusCode, Errno: envelope.Errno}
	}
	if dest != nil {
		if envelope.Result == nil {
			return APIError{Endpoint: req.URL.Path, Status: resp.StatusCode, Message: "empty result"}
		}
		if err := json.Unmarshal(envelope.Result, dest); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", req.URL.Path, err)
		}
	}
	return nil
}

type loginResult struct {
	Token string `json:"token"`
}

// ensureToken logs in when there is no token or the cached one has expired.
// Changing identity state is deferred until the new token is obtained.
func (f *FoxESS) ensureToken(ctx context.Context) error {
	if f.token != "" && f.now().Sub(f.tokenTime) <= foxTokenValidity {
		return nil
	}
	if f.username == "" {
		return errors.New("missing username")
	}
	if f.md5Password == "" {
		return errors.New("missing password")
	}

	req, err := f.newRequest(ctx, "POST", foxLoginPath, nil, map[string]string{
		"user":     f.username,
		"password": f.md5Password,
	})
	if err != nil {
		return err
	}
	var res loginResult
	if err := f.doRequest(req, &res); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "cloud login failed", slog.Any("error", err))
		return err
	}
	if res.Token == "" {
		return AuthError{Status: http.StatusOK, Message: "login result carried no token"}
	}
	f.token = res.Token
	f.tokenTime = f.now()
	log.Ctx(ctx).DebugContext(ctx, "cloud login success", slog.String("username", f.username))
	return nil
}

type siteListResult struct {
	Total  int    `json:"total"`
	Plants []Site `json:"plants"`
}

// ResolveSite selects a site by name prefix, case-insensitively. A sole
// site is selected with an empty prefix.
func (f *FoxESS) ResolveSite(ctx context.Context, namePrefix string) (Site, error) {
	if f.site != nil && (namePrefix == "" || hasPrefixFold(f.site.Name, namePrefix)) {
		return *f.site, nil
	}
	if err := f.ensureToken(ctx); err != nil {
		return Site{}, err
	}

	req, err := f.newRequest(ctx, "POST", "c/v1/plant/list", nil, map[string]any{
		"pageSize":    foxPageSize,
		"currentPage": 1,
		"total":       0,
		"condition":   map[string]any{"status": 0, "contentType": 2, "content": ""},
	})
	if err != nil {
		return Site{}, err
	}
	var res siteListResult
	if err := f.doRequest(req, &res); err != nil {
		return Site{}, err
	}

	names := make([]string, len(res.Plants))
	for i, s := range res.Plants {
		names[i] = s.Name
	}
	idx, err := selectOne("site", namePrefix, names)
	if err != nil {
		return Site{}, err
	}
	f.site = &res.Plants[idx]
	return *f.site, nil
}

type loggerListResult struct {
	Total int      `json:"total"`
	Data  []Logger `json:"data"`
}

// ResolveLogger selects a data logger by serial prefix.
func (f *FoxESS) ResolveLogger(ctx context.Context, serialPrefix string) (Logger, error) {
	if f.logger != nil && (serialPrefix == "" || hasPrefixFold(f.logger.ModuleSN, serialPrefix)) {
		return *f.logger, nil
	}
	if err := f.ensureToken(ctx); err != nil {
		return Logger{}, err
	}

	req, err := f.newRequest(ctx, "POST", "c/v0/module/list", nil, map[string]any{
		"pageSize":    foxPageSize,
		"currentPage": 1,
		"total":       0,
		"condition":   map[string]any{"communication": 0, "moduleSN": "", "moduleType": ""},
	})
	if err != nil {
		return Logger{}, err
	}
	var res loggerListResult
	if err := f.doRequest(req, &res); err != nil {
		return Logger{}, err
	}

	serials := make([]string, len(res.Data))
	for i, l := range res.Data {
		serials[i] = l.ModuleSN
	}
	idx, err := selectOne("logger", serialPrefix, serials)
	if err != nil {
		return Logger{}, err
	}
	f.logger = &res.Data[idx]
	return *f.logger, nil
}

type deviceListResult struct {
	Total   int            `json:"total"`
	Devices []types.Device `json:"devices"`
}

// ResolveDevice implements Accessor.
func (f *FoxESS) ResolveDevice(ctx context.Context, serialPrefix string) (types.Device, error) {
	if f.device != nil && (serialPrefix == "" || hasPrefixFold(f.device.SerialNumber, serialPrefix)) {
		return *f.device, nil
	}
	if err := f.ensureToken(ctx); err != nil {
		return types.Device{}, err
	}

	req, err := f.newRequest(ctx, "POST", "c/v0/device/list", nil, map[string]any{
		"pageSize":    foxPageSize,
		"currentPage": 1,
		"total":       0,
		"queryDate":   map[string]int{"begin": 0, "end": 0},
	})
	if err != nil {
		return types.Device{}, err
	}
	var res deviceListResult
	if err := f.doRequest(req, &res); err != nil {
		return types.Device{}, err
	}

	serials := make([]string, len(res.Devices))
	for i, d := range res.Devices {
		serials[i] = d.SerialNumber
	}
	idx, err := selectOne("device", serialPrefix, serials)
	if err != nil {
		return types.Device{}, err
	}
	device := res.Devices[idx]
	parseDeviceModel(&device)

	// switching devices invalidates the cached variable list
	f.device = &device
	f.rawVars = nil
	vars, err := f.GetVariables(ctx)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to load device variables", slog.Any("error", err))
	} else {
		f.rawVars = vars
	}
	log.Ctx(ctx).InfoContext(ctx, "selected device",
		slog.String("serial", device.SerialNumber),
		slog.String("model", device.Model),
		slog.Float64("powerKW", device.RatedPowerKW))
	return device, nil
}

// selectOne picks the single candidate matching the prefix. No candidates
// (or no match) is a NotFoundError; several matches is an AmbiguousError
// carrying the candidate list so the caller can disambiguate.
func selectOne(kind, prefix string, candidates []string) (int, error) {
	if len(candidates) == 0 {
		return 0, NotFoundError{Kind: kind, Selector: prefix}
	}
	var matches []int
	for i, c := range candidates {
		if prefix == "" || hasPrefixFold(c, prefix) {
			matches = append(matches, i)
		}
	}
	switch len(matches) {
	case 0:
		return 0, NotFoundError{Kind: kind, Selector: prefix}
	case 1:
		return matches[0], nil
	default:
		names := make([]string, len(matches))
		for i, m := range matches {
			names[i] = candidates[m]
		}
		return 0, AmbiguousError{Kind: kind, Selector: prefix, Candidates: names}
	}
}

func hasPrefixFold(s, prefix string) bool {
	return strings.HasPrefix(strings.ToUpper(s), strings.ToUpper(prefix))
}

// knownModels are the model families we can derive attributes for.
var knownModels = []string{"H1", "H3", "KH", "AC1", "AC3", "AIOH1", "AIOH3"}

// parseDeviceModel derives model, phase count, rated power and the EPS flag
// from the device type code, e.g. "H1-5.0-E" or "KH10.5".
func parseDeviceModel(d *types.Device) {
	code := strings.ToUpper(d.DeviceType)
	// normalize the forms that omit or double up the separator
	if strings.HasPrefix(code, "KH") && !strings.HasPrefix(code, "KH-") {
		code = "KH-" + code[2:]
	} else if strings.HasPrefix(code, "AIO-") {
		code = "AIO" + code[4:]
	}
	d.HasEPS = strings.Contains(code, "E")

	parts := strings.Split(code, "-")
	model := parts[0]
	known := false
	for _, m := range knownModels {
		if m == model {
			known = true
			break
		}
	}
	if !known {
		return
	}
	d.Model = model
	if strings.HasSuffix(model, "3") {
		d.Phases = 3
	} else {
		d.Phases = 1
	}
	for _, p := range parts[1:] {
		power, err := strconv.ParseFloat(p, 64)
		if err != nil {
			continue
		}
		if power >= 1.0 && power < 20.0 {
			d.RatedPowerKW = power
		}
		break
	}
}

// requireDevice returns the resolved device, resolving a sole device first
// if none was picked yet.
func (f *FoxESS) requireDevice(ctx context.Context) (types.Device, error) {
	if f.device != nil {
		return *f.device, nil
	}
	return f.ResolveDevice(ctx, "")
}

type variablesResult struct {
	Variables []Variable `json:"variables"`
}

// GetVariables lists the raw telemetry channels of the selected device.
func (f *FoxESS) GetVariables(ctx context.Context) ([]Variable, error) {
	device, err := f.requireDevice(ctx)
	if err != nil {
		return nil, err
	}
	if err := f.ensureToken(ctx); err != nil {
		return nil, err
	}
	// the v1 api carries the full {name, variable, unit} triple
	req, err := f.newRequest(ctx, "GET", "c/v1/device/variables",
		url.Values{"deviceID": {device.ID}}, nil)
	if err != nil {
		return nil, err
	}
	var res variablesResult
	if err := f.doRequest(req, &res); err != nil {
		return nil, err
	}
	return res.Variables, nil
}

type firmwareResult struct {
	SoftVersion Firmware `json:"softVersion"`
}

// GetFirmware returns the selected device's firmware versions.
func (f *FoxESS) GetFirmware(ctx context.Context) (Firmware, error) {
	device, err := f.requireDevice(ctx)
	if err != nil {
		return Firmware{}, err
	}
	if err := f.ensureToken(ctx); err != nil {
		return Firmware{}, err
	}
	req, err := f.newRequest(ctx, "GET", "c/v0/device/addressbook",
		url.Values{"deviceID": {device.ID}}, nil)
	if err != nil {
		return Firmware{}, err
	}
	var res firmwareResult
	if err := f.doRequest(req, &res); err != nil {
		return Firmware{}, err
	}
	return res.SoftVersion, nil
}

// GetEarnings returns the cloud's earnings summary for the device.
func (f *FoxESS) GetEarnings(ctx context.Context) (Earnings, error) {
	device, err := f.requireDevice(ctx)
	if err != nil {
		return Earnings{}, err
	}
	if err := f.ensureToken(ctx); err != nil {
		return Earnings{}, err
	}
	req, err := f.newRequest(ctx, "GET", "c/v0/device/earnings",
		url.Values{"deviceID": {device.ID}}, nil)
	if err != nil {
		return Earnings{}, err
	}
	var res Earnings
	if err := f.doRequest(req, &res); err != nil {
		return Earnings{}, err
	}
	return res, nil
}

type workModeResult struct {
	Values map[string]string `json:"values"`
}

const workModeKey = "operation_mode__work_mode"

// GetWorkMode returns the device operating mode.
func (f *FoxESS) GetWorkMode(ctx context.Context) (string, error) {
	device, err := f.requireDevice(ctx)
	if err != nil {
		return "", err
	}
	if err := f.ensureToken(ctx); err != nil {
		return "", err
	}
	req, err := f.newRequest(ctx, "GET", "c/v0/device/setting/get", url.Values{
		"id":             {device.ID},
		"hasVersionHead": {"1"},
		"key":            {workModeKey},
	}, nil)
	if err != nil {
		return "", err
	}
	var res workModeResult
	if err := f.doRequest(req, &res); err != nil {
		return "", err
	}
	mode, ok := res.Values[workModeKey]
	if !ok {
		return "", APIError{Endpoint: "c/v0/device/setting/get", Status: http.StatusOK, Message: "no work mode in result"}
	}
	return mode, nil
}

// SetWorkMode sets the device operating mode. The mode is validated before
// any network call.
func (f *FoxESS) SetWorkMode(ctx context.Context, mode string) error {
	valid := false
	for _, m := range WorkModes {
		if m == mode {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid work mode %q, must be one of %s", mode, strings.Join(WorkModes, ", "))
	}
	device, err := f.requireDevice(ctx)
	if err != nil {
		return err
	}
	if err := f.ensureToken(ctx); err != nil {
		return err
	}
	req, err := f.newRequest(ctx, "POST", "c/v0/device/setting/set", nil, map[string]any{
		"id":     device.ID,
		"key":    workModeKey,
		"values": map[string]string{workModeKey: mode},
		"raw":    "",
	})
	if err != nil {
		return err
	}
	return f.doRequest(req, nil)
}
