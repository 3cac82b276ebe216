package api

import (
	"net/http"

	"RegimeCast/internal/dbn"
	models "RegimeCast/internal/domain/models"
	domrepo "RegimeCast/internal/domain/repository"
	"RegimeCast/internal/service/ratelimit"
	"RegimeCast/internal/usecase"
	"RegimeCast/pkg/cache"
	xhttp "RegimeCast/pkg/http"
	xlogger "RegimeCast/pkg/logger"
	"RegimeCast/pkg/queue"

	"github.com/labstack/echo/v4"
)

// EngineHandler exposes the live engine over Echo: belief, forecasts, the
// network artifact, stored predictions, diagnostics, and replay jobs.
type EngineHandler struct {
	logger   *xlogger.Logger
	runner   *usecase.StreamRunner
	exporter *usecase.Exporter
	store    domrepo.PredictionStore
	queue    queue.QueueService
	cache    cache.Service
	rl       *ratelimit.Limiter
}

func NewEngineHandler(
	logger *xlogger.Logger,
	runner *usecase.StreamRunner,
	exporter *usecase.Exporter,
	store domrepo.PredictionStore,
	q queue.QueueService,
	c cache.Service,
) *EngineHandler {
	return &EngineHandler{
		logger:   logger,
		runner:   runner,
		exporter: exporter,
		store:    store,
		queue:    q,
		cache:    c,
		rl:       ratelimit.New(),
	}
}

func (h *EngineHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/belief", h.Belief)
	g.GET("/forecast", h.Forecast)
	g.GET("/network", h.Network)
	g.GET("/predictions", h.Predictions)
	g.GET("/diagnostics", h.Diagnostics)
	g.POST("/replay", h.Replay)
	g.GET("/replay/last", h.ReplayLast)
	g.GET("/health", h.Health)
}

type beliefNode struct {
	Labels        []string  `json:"labels"`
	Probabilities []float64 `json:"probabilities"`
	Entropy       float64   `json:"entropy"`
}

type beliefResponse struct {
	Step  int64                 `json:"step"`
	At    string                `json:"at"`
	Nodes map[string]beliefNode `json:"nodes"`
}

// Belief returns the current filtered distribution per hidden node.
func (h *EngineHandler) Belief(c echo.Context) error {
	b := h.runner.Belief()
	net := h.runner.Network()

	nodes := make(map[string]beliefNode, len(net.Hidden()))
	for _, n := range net.Hidden() {
		nodes[n.ID] = beliefNode{
			Labels:        n.Domain,
			Probabilities: b.Dist(n.ID),
			Entropy:       b.NormalizedEntropy(n.ID),
		}
	}
	return xhttp.SuccessResponse(c, beliefResponse{
		Step:  b.Step(),
		At:    b.At().Format("2006-01-02T15:04:05.000Z07:00"),
		Nodes: nodes,
	})
}

// Forecast projects the belief forward and classifies the requested node.
func (h *EngineHandler) Forecast(c echo.Context) error {
	req := &models.ForecastRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	metric, err := dbn.ParseConfidenceMetric(req.Metric)
	if err != nil {
		return xhttp.BadRequestResponse(c, err.Error())
	}

	cls, err := h.runner.Forecast(req.Horizon, req.Node, metric)
	if err != nil {
		h.logger.Error("forecast error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("forecast: %v", err))
	}
	return xhttp.SuccessResponse(c, cls)
}

// Network returns the serialized model artifact.
func (h *EngineHandler) Network(c echo.Context) error {
	artifact, err := h.exporter.Artifact(c.Request().Context())
	if err != nil {
		h.logger.Error("artifact export error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, artifact)
}

// Predictions lists recent prediction records for a node.
func (h *EngineHandler) Predictions(c echo.Context) error {
	req := &models.PredictionsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.store == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("prediction store not configured"))
	}

	rows, err := h.store.Recent(c.Request().Context(), req.Node, req.N)
	if err != nil {
		h.logger.Error("predictions query error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

type diagnosticsResponse struct {
	Status usecase.Status  `json:"status"`
	Events []xlogger.Event `json:"events"`
}

// Diagnostics returns runner counters plus recent warn/error events.
func (h *EngineHandler) Diagnostics(c echo.Context) error {
	req := &models.DiagnosticsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return xhttp.SuccessResponse(c, diagnosticsResponse{
		Status: h.runner.Status(),
		Events: h.logger.Recent(req.N),
	})
}

// Replay enqueues a historical training run.
func (h *EngineHandler) Replay(c echo.Context) error {
	if !h.rl.Allow(c.RealIP()+":replay", 2, 0.2) {
		return xhttp.DataResponse(c, http.StatusTooManyRequests, "rate limited")
	}
	req := &models.ReplayRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.queue == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("replay queue not configured"))
	}

	if err := h.queue.PublishMessage(c.Request().Context(), usecase.ReplayJobType, req); err != nil {
		h.logger.Error("replay enqueue error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.DataResponse(c, http.StatusAccepted, map[string]string{"status": "queued", "path": req.Path})
}

// ReplayLast returns the cached result of the most recent replay job.
func (h *EngineHandler) ReplayLast(c echo.Context) error {
	result, ok, err := usecase.LastReplayResult(c.Request().Context(), h.cache)
	if err != nil {
		h.logger.Error("replay result error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no replay has completed"))
	}
	return xhttp.SuccessResponse(c, result)
}

// Health reports liveness of the engine and its prediction store.
func (h *EngineHandler) Health(c echo.Context) error {
	out := map[string]string{"engine": "ok"}
	if h.store != nil {
		if err := h.store.Health(c.Request().Context()); err != nil {
			out["store"] = err.Error()
			return xhttp.DataResponse(c, http.StatusServiceUnavailable, out)
		}
		out["store"] = "ok"
	}
	return xhttp.SuccessResponse(c, out)
}
