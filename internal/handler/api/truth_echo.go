package api

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"

	models "TruthGate/internal/domain/models"
	"TruthGate/internal/middleware"
	"TruthGate/internal/services/risk"
	"TruthGate/internal/usecase"
	xhttp "TruthGate/pkg/http"
	xlogger "TruthGate/pkg/logger"
	"TruthGate/pkg/util"
)

// HealthChecker reports the liveness of one backing service.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// TruthEchoHandler exposes the operational HTTP surface: calibration
// inspection, shrink lookups, manual truth-test runs, execution proposals
// and the live decision feed.
type TruthEchoHandler struct {
	logger      *xlogger.Logger
	runner      *usecase.TruthRunner
	calibration *usecase.CalibrationRunner
	gateway     *risk.Gateway
	feed        *middleware.DecisionFeed
	checks      map[string]HealthChecker
}

func NewTruthEchoHandler(
	logger *xlogger.Logger,
	runner *usecase.TruthRunner,
	calibration *usecase.CalibrationRunner,
	gateway *risk.Gateway,
	feed *middleware.DecisionFeed,
) *TruthEchoHandler {
	return &TruthEchoHandler{
		logger:      logger,
		runner:      runner,
		calibration: calibration,
		gateway:     gateway,
		feed:        feed,
		checks:      make(map[string]HealthChecker),
	}
}

// AddHealthCheck registers a named backing-service check for /api/health.
func (h *TruthEchoHandler) AddHealthCheck(name string, check HealthChecker) {
	h.checks[name] = check
}

func (h *TruthEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/health", h.Health)
	g.GET("/calibration", h.Calibration)
	g.GET("/shrink", h.Shrink)
	g.POST("/truth-test/run", h.TruthRun)
	g.POST("/executions/propose", h.Propose)

	if h.feed != nil {
		e.GET("/ws/decisions", h.Decisions)
	}
}

func (h *TruthEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	status := "ok"
	services := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check.Health(ctx); err != nil {
			services[name] = err.Error()
			status = "degraded"
		} else {
			services[name] = "ok"
		}
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"status":   status,
		"services": services,
		"time":     time.Now().UTC(),
	})
}

// Calibration returns the current snapshot, or 404 before the first run.
func (h *TruthEchoHandler) Calibration(c echo.Context) error {
	snap := h.calibration.Snapshot()
	if snap == nil {
		return xhttp.NotFoundResponse(c, map[string]string{
			"message": "no calibration snapshot yet",
		})
	}
	return xhttp.SuccessResponse(c, snap)
}

func (h *TruthEchoHandler) Shrink(c echo.Context) error {
	req := &models.ShrinkRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	factor := h.calibration.ShrinkFor(models.Horizon(req.Horizon), req.Regime, req.Attention)
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"horizon":       req.Horizon,
		"regime":        req.Regime,
		"attention":     req.Attention,
		"shrink_factor": factor,
	})
}

// TruthRun triggers an immediate evaluation sweep.
func (h *TruthEchoHandler) TruthRun(c echo.Context) error {
	req := &models.TruthRunRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	stats, err := h.runner.RunBatch(c.Request().Context(), req.Limit)
	if err != nil {
		h.logger.Error("manual truth run failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, stats)
}

// Propose submits an execution candidate to the gateway. Rejections are a
// normal outcome, not an HTTP error.
func (h *TruthEchoHandler) Propose(c echo.Context) error {
	req := &models.ProposeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	signalTime, ok := util.ParseTime(req.SignalTime)
	if !ok {
		return xhttp.BadRequestResponse(c, map[string]string{
			"message": "signal_time must be RFC3339 or unix seconds",
		})
	}

	decision := h.gateway.Authorize(c.Request().Context(), &models.ExecutionProposal{
		Ticker:     req.Ticker,
		Horizon:    models.Horizon(req.Horizon),
		SignalTime: signalTime,
	})
	return xhttp.SuccessResponse(c, decision)
}

// Decisions upgrades to WebSocket and streams gateway decisions.
func (h *TruthEchoHandler) Decisions(c echo.Context) error {
	return h.feed.ServeHTTP(c.Response(), c.Request())
}
