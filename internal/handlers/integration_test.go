package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"oven_controller/internal/hardware"
	"oven_controller/internal/models"
	"oven_controller/internal/repository"
	"oven_controller/internal/repository/db"
	"oven_controller/internal/service"
	"oven_controller/internal/trend"
)

// newStack wires the real repository, services and simulated hardware over
// a temporary SQLite file.
func newStack(t *testing.T, authEnabled bool) (http.Handler, *service.Service) {
	t.Helper()
	conn, err := db.InitDB(filepath.Join(t.TempDir(), "oven.db"))
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	buf := trend.New(trend.DefaultCapacity)
	svc := service.NewService(service.Deps{
		Repos:   repository.NewRepository(conn),
		Backend: hardware.NewSimulatedBackend(buf, hardware.DefaultMockModel()),
		Trend:   buf,
		Control: service.ControlConfig{Params: service.DefaultControlParams(), Samples: 1},
		Auth:    service.AuthConfig{SigningKey: "integration-key", TokenTTL: time.Minute},
	})
	return newTestRouterWith(svc, Options{AuthEnabled: authEnabled}), svc
}

func readState(t *testing.T, r http.Handler) models.OvenState {
	t.Helper()
	w := doGet(r, "/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var st models.OvenState
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return st
}

func TestIntegration_InvalidTempLeavesStoredValue(t *testing.T) {
	r, _ := newStack(t, false)

	if w := doGet(r, "/set?dev=temp&value=180", nil); w.Code != http.StatusOK {
		t.Fatalf("set 180: %d %s", w.Code, w.Body.String())
	}

	w := doGet(r, "/set?dev=temp&value=abc", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if msg := errorBody(t, w); msg != "can't set temp to abc" {
		t.Fatalf("error=%q", msg)
	}
	for _, v := range []string{"-1", "500.5"} {
		if w := doGet(r, "/set?dev=temp&value="+v, nil); w.Code != http.StatusBadRequest {
			t.Fatalf("value %s: expected 400, got %d", v, w.Code)
		}
	}

	if st := readState(t, r); st.SetTemp != 180 {
		t.Fatalf("set_temp=%v, want 180", st.SetTemp)
	}
}

func TestIntegration_SetThenControlTick(t *testing.T) {
	r, svc := newStack(t, false)
	ctx := context.Background()

	for _, q := range []string{"dev=temp&value=high", "dev=top&value=on", "dev=back&value=ON", "dev=light&value=1"} {
		if w := doGet(r, "/set?"+q, nil); w.Code != http.StatusOK {
			t.Fatalf("%s: %d %s", q, w.Code, w.Body.String())
		}
	}

	if err := svc.Tick(ctx, time.Now()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	st := readState(t, r)
	if st.SetTemp != 250 || !st.Top || !st.Back || !st.Fan || !st.Light || st.Bottom {
		t.Fatalf("unexpected state after tick: %+v", st)
	}

	w := doGet(r, "/events?type=heating_on", nil)
	var out struct {
		Count int `json:"count"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	if w.Code != http.StatusOK || out.Count != 1 {
		t.Fatalf("expected one HEATING_ON event: %d %s", w.Code, w.Body.String())
	}

	w = doGet(r, "/events?type=setpoint_change", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	if out.Count != 4 {
		t.Fatalf("expected 4 SETPOINT_CHANGE events, got %d", out.Count)
	}

	// unchanged value: no new event
	doGet(r, "/set?dev=top&value=true", nil)
	w = doGet(r, "/events?type=setpoint_change", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	if out.Count != 4 {
		t.Fatalf("unchanged write must not log, got %d events", out.Count)
	}

	w = doGet(r, "/trend", nil)
	if !bytes.Contains(w.Body.Bytes(), []byte(`"count":1`)) {
		t.Fatalf("trend: %s", w.Body.String())
	}
}

func TestIntegration_AuthFlow(t *testing.T) {
	r, _ := newStack(t, true)

	post := func(path, body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		return w
	}

	if w := post("/auth/sign-up", `{"username":"baker","password":"sourdough"}`); w.Code != http.StatusOK {
		t.Fatalf("sign-up: %d %s", w.Code, w.Body.String())
	}
	if w := post("/auth/sign-up", `{"username":"second","password":"x"}`); w.Code != http.StatusForbidden {
		t.Fatalf("second sign-up: expected 403, got %d", w.Code)
	}

	w := post("/auth/sign-in", `{"username":"baker","password":"sourdough"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("sign-in: %d %s", w.Code, w.Body.String())
	}
	var tok struct {
		Token string `json:"token"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &tok)

	if w := doGet(r, "/set?dev=fan&value=on", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	if w := doGet(r, "/set?dev=fan&value=on", authHeader(tok.Token)); w.Code != http.StatusOK {
		t.Fatalf("set with token: %d %s", w.Code, w.Body.String())
	}
	if st := readState(t, r); !st.SetFan {
		t.Fatal("set_fan not stored")
	}
}
