package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"RegimeCast/internal/dbn"
	"RegimeCast/internal/domain/models"
	"RegimeCast/internal/usecase"
	xlogger "RegimeCast/pkg/logger"

	"github.com/labstack/echo/v4"
)

func testHandler(t *testing.T) (*EngineHandler, *usecase.StreamRunner, *echo.Echo) {
	t.Helper()

	net, cpts, err := dbn.BuildStockModel(dbn.StockModelConfig{HiddenStates: 2, PriorStrength: 1, Seed: 1})
	if err != nil {
		t.Fatalf("build model: %v", err)
	}
	runner, err := usecase.NewStreamRunner(net, cpts, usecase.RunnerConfig{
		Node:    dbn.NodePriceMove,
		Horizon: 1,
		Metric:  dbn.ConfidenceMargin,
		Decay:   1,
	}, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}

	l, err := xlogger.New(&xlogger.Config{Level: "info", Format: "json", Output: "stdout"})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	l.AddCollector(&xlogger.CollectionConfig{Capacity: 16})

	exporter := usecase.NewExporter(runner, nil, "SPY")
	h := NewEngineHandler(l, runner, exporter, nil, nil, nil)

	e := echo.New()
	h.RegisterRoutes(e)
	return h, runner, e
}

func doRequest(t *testing.T, e *echo.Echo, method, target string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec, body
}

func TestBeliefEndpoint(t *testing.T) {
	_, runner, e := testHandler(t)

	if _, err := runner.Step(context.Background(), models.ObservationRecord{
		Symbol:    "SPY",
		Timestamp: time.Unix(60, 0).UTC(),
		Values:    map[string]string{dbn.NodePriceMove: dbn.LabelUp},
	}); err != nil {
		t.Fatalf("step: %v", err)
	}

	rec, body := doRequest(t, e, http.MethodGet, "/api/belief")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	data := body["data"].(map[string]interface{})
	if data["step"].(float64) != 1 {
		t.Fatalf("unexpected step %v", data["step"])
	}
	nodes := data["nodes"].(map[string]interface{})
	if _, ok := nodes[dbn.NodeRegime]; !ok {
		t.Fatalf("regime node missing from belief: %v", nodes)
	}
}

func TestForecastEndpoint(t *testing.T) {
	_, _, e := testHandler(t)

	rec, body := doRequest(t, e, http.MethodGet, "/api/forecast?horizon=2&metric=entropy")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	data := body["data"].(map[string]interface{})
	if data["node"] != dbn.NodePriceMove {
		t.Fatalf("unexpected node %v", data["node"])
	}
	if data["metric"] != "entropy" {
		t.Fatalf("unexpected metric %v", data["metric"])
	}
}

func TestForecastEndpointRejectsBadMetric(t *testing.T) {
	_, _, e := testHandler(t)

	rec, body := doRequest(t, e, http.MethodGet, "/api/forecast?metric=vibes")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected transport status %d", rec.Code)
	}
	if body["status"].(float64) != http.StatusBadRequest {
		t.Fatalf("expected bad request status, got %v", body["status"])
	}
}

func TestNetworkEndpoint(t *testing.T) {
	_, _, e := testHandler(t)

	rec, body := doRequest(t, e, http.MethodGet, "/api/network")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	data := body["data"].(map[string]interface{})
	if data["name"] != "SPY" {
		t.Fatalf("unexpected artifact name %v", data["name"])
	}
}

func TestPredictionsEndpointWithoutStore(t *testing.T) {
	_, _, e := testHandler(t)

	_, body := doRequest(t, e, http.MethodGet, "/api/predictions")
	if body["status"].(float64) != http.StatusNotFound {
		t.Fatalf("expected not found, got %v", body["status"])
	}
}

func TestDiagnosticsEndpoint(t *testing.T) {
	h, _, e := testHandler(t)
	h.logger.Warn("something odd")

	rec, body := doRequest(t, e, http.MethodGet, "/api/diagnostics")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	data := body["data"].(map[string]interface{})
	events := data["events"].([]interface{})
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	status := data["status"].(map[string]interface{})
	if status["step"].(float64) != 0 {
		t.Fatalf("unexpected step %v", status["step"])
	}
}

func TestReplayEndpointWithoutQueue(t *testing.T) {
	_, _, e := testHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/replay", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// Missing body fails validation before the queue check.
	if body["status"].(float64) != http.StatusBadRequest {
		t.Fatalf("expected bad request, got %v", body["status"])
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, _, e := testHandler(t)

	rec, body := doRequest(t, e, http.MethodGet, "/api/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	data := body["data"].(map[string]interface{})
	if data["engine"] != "ok" {
		t.Fatalf("unexpected health %v", data)
	}
}
