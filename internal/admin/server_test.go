package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/yanmasharski/kidlock-tv/internal/clock"
	"github.com/yanmasharski/kidlock-tv/internal/codes"
	"github.com/yanmasharski/kidlock-tv/internal/launcher"
	"github.com/yanmasharski/kidlock-tv/internal/ledger"
	"github.com/yanmasharski/kidlock-tv/internal/monitor"
	"github.com/yanmasharski/kidlock-tv/internal/storage/bolt"
	"github.com/yanmasharski/kidlock-tv/internal/usagestats"
)

const testSelfPkg = "com.example.kidlock"

func newTestServer(t *testing.T) *Server {
	t.Helper()

	store, err := bolt.Open(filepath.Join(t.TempDir(), "settings.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	clk := &clock.TestClock{CurrentTime: time.Date(2026, 3, 10, 12, 0, 0, 0, time.Local)}
	log := zerolog.Nop()
	ctx := context.Background()

	l := ledger.New(store, clk, 0, log)
	if err := l.InitializeIfNeeded(ctx); err != nil {
		t.Fatalf("InitializeIfNeeded: %v", err)
	}

	cm := codes.NewManager(store, l, clk, log)
	rec := usagestats.NewRecorder(store, clk, 0, log)
	deny := usagestats.NewDenyList(testSelfPkg, "com.google.android.tvlauncher", nil)
	acc := usagestats.NewAccountant(rec, deny, clk, log)

	mon := monitor.New(
		monitor.Config{SelfPackage: testSelfPkg},
		[]monitor.ForegroundSource{
			monitor.NewFuncSource("recorder", rec.MostRecentPackage),
		},
		acc, l, launcher.New(launcher.Config{}, log), clk, log,
	)

	return NewServer(Config{ListenAddr: "127.0.0.1:0"}, l, cm, acc, rec, mon, log)
}

func doJSON(t *testing.T, handler http.Handler, method, path, pin string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if pin != "" {
		req.Header.Set("X-Admin-Pin", pin)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rr := doJSON(t, s.Handler(), "GET", "/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	rr := doJSON(t, s.Handler(), "PUT", "/api/budget/limit", "", setLimitRequest{Minutes: 45})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status without pin = %d, want 401", rr.Code)
	}

	rr = doJSON(t, s.Handler(), "PUT", "/api/budget/limit", "111111", setLimitRequest{Minutes: 45})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status with wrong pin = %d, want 401", rr.Code)
	}

	rr = doJSON(t, s.Handler(), "PUT", "/api/budget/limit", ledger.DefaultPin, setLimitRequest{Minutes: 45})
	if rr.Code != http.StatusOK {
		t.Fatalf("status with pin = %d, want 200: %s", rr.Code, rr.Body.String())
	}
}

func TestSetLimitRejectsNegative(t *testing.T) {
	s := newTestServer(t)

	rr := doJSON(t, s.Handler(), "PUT", "/api/budget/limit", ledger.DefaultPin, setLimitRequest{Minutes: -5})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestStatus(t *testing.T) {
	s := newTestServer(t)

	rr := doJSON(t, s.Handler(), "GET", "/api/status", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}

	var got map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if got["daily_limit_minutes"].(float64) != ledger.DefaultDailyLimitMinutes {
		t.Errorf("daily_limit_minutes = %v, want %d", got["daily_limit_minutes"], ledger.DefaultDailyLimitMinutes)
	}
	if got["monitor_state"] != "idle" {
		t.Errorf("monitor_state = %v, want idle", got["monitor_state"])
	}
}

func TestGenerateListAndSubmitCode(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	rr := doJSON(t, h, "POST", "/api/codes", ledger.DefaultPin, generateCodesRequest{Grants: []int{30, 60}})
	if rr.Code != http.StatusCreated {
		t.Fatalf("generate status = %d, want 201: %s", rr.Code, rr.Body.String())
	}
	var created struct {
		Codes []codes.Code `json:"codes"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(created.Codes) != 2 {
		t.Fatalf("generated %d codes, want 2", len(created.Codes))
	}

	rr = doJSON(t, h, "GET", "/api/codes", ledger.DefaultPin, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rr.Code)
	}

	// The lock screen submits without the PIN header.
	rr = doJSON(t, h, "POST", "/api/submit", "", submitRequest{Input: created.Codes[0].Value})
	if rr.Code != http.StatusOK {
		t.Fatalf("submit status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
	var result codes.Result
	if err := json.Unmarshal(rr.Body.Bytes(), &result); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if result.Outcome != codes.OutcomeSuccess || result.GrantMinutes != 30 {
		t.Errorf("submit result = %+v, want success with 30 minutes", result)
	}

	// PIN input grants admin access through the same endpoint.
	rr = doJSON(t, h, "POST", "/api/submit", "", submitRequest{Input: ledger.DefaultPin})
	if rr.Code != http.StatusOK {
		t.Fatalf("pin submit status = %d, want 200", rr.Code)
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &result); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if result.Outcome != codes.OutcomeAdminAccess {
		t.Errorf("pin submit outcome = %q, want %q", result.Outcome, codes.OutcomeAdminAccess)
	}
}

func TestGenerateCodesByCount(t *testing.T) {
	s := newTestServer(t)

	rr := doJSON(t, s.Handler(), "POST", "/api/codes", ledger.DefaultPin, generateCodesRequest{Count: 3, Minutes: 20})
	if rr.Code != http.StatusCreated {
		t.Fatalf("generate status = %d, want 201: %s", rr.Code, rr.Body.String())
	}
	var created struct {
		Codes []codes.Code `json:"codes"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(created.Codes) != 3 {
		t.Fatalf("generated %d codes, want 3", len(created.Codes))
	}
	for i, c := range created.Codes {
		if c.GrantMinutes != 20 {
			t.Errorf("code %d grant = %d, want 20", i, c.GrantMinutes)
		}
	}
}

func TestDeleteCode(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	rr := doJSON(t, h, "POST", "/api/codes", ledger.DefaultPin, generateCodesRequest{Grants: []int{15}})
	var created struct {
		Codes []codes.Code `json:"codes"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decoding response: %v", err)
	}

	rr = doJSON(t, h, "DELETE", fmt.Sprintf("/api/codes/%s", created.Codes[0].Value), ledger.DefaultPin, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status = %d, want 200", rr.Code)
	}
}

func TestForegroundEventFeedsRecorder(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	rr := doJSON(t, h, "POST", "/api/events/foreground", "", foregroundEventRequest{Package: "com.example.game"})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("event status = %d, want 202: %s", rr.Code, rr.Body.String())
	}

	// The monitor picks the package up through the recorder source.
	state, tracked := s.monitor.Snapshot()
	if state != monitor.StateTracking || tracked != "com.example.game" {
		t.Errorf("monitor = %v/%q, want tracking com.example.game", state, tracked)
	}
}

func TestToggleUnlock(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	rr := doJSON(t, h, "POST", "/api/budget/unlock-toggle", ledger.DefaultPin, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("toggle status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
	var got map[string]bool
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !got["unlocked_until_tomorrow"] {
		t.Error("expected unlock to turn on")
	}
}

func TestSetPinValidation(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	rr := doJSON(t, h, "PUT", "/api/pin", ledger.DefaultPin, setPinRequest{Pin: "12"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("short pin status = %d, want 400", rr.Code)
	}

	rr = doJSON(t, h, "PUT", "/api/pin", ledger.DefaultPin, setPinRequest{Pin: "654321"})
	if rr.Code != http.StatusOK {
		t.Fatalf("set pin status = %d, want 200", rr.Code)
	}

	// Old PIN no longer authenticates.
	rr = doJSON(t, h, "PUT", "/api/budget/limit", ledger.DefaultPin, setLimitRequest{Minutes: 30})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("old pin status = %d, want 401", rr.Code)
	}
	rr = doJSON(t, h, "PUT", "/api/budget/limit", "654321", setLimitRequest{Minutes: 30})
	if rr.Code != http.StatusOK {
		t.Fatalf("new pin status = %d, want 200", rr.Code)
	}
}

func TestSetBlocking(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	rr := doJSON(t, h, "PUT", "/api/budget/blocking", ledger.DefaultPin, setFlagRequest{Enabled: true})
	if rr.Code != http.StatusOK {
		t.Fatalf("blocking status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
}
