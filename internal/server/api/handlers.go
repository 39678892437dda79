package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"notedrop/internal/server/database"
	"notedrop/internal/server/service"

	"github.com/labstack/echo/v4"
)

// Handler contains the HTTP handlers for the notedrop API.
type Handler struct {
	svc *service.ReceiptService
	db  *database.DB
}

// NewHandler creates a new handler with the given service dependency.
func NewHandler(svc *service.ReceiptService, db *database.DB) *Handler {
	return &Handler{svc: svc, db: db}
}

type submitRequest struct {
	Note string `json:"note"`
}

type verifyRequest struct {
	Ref  string `json:"ref"`
	Note string `json:"note"`
}

// HandleSubmit handles POST /api/submit.
// Accepts {"note": "..."} and returns a receipt reference on success.
func (h *Handler) HandleSubmit(c echo.Context) error {
	var req submitRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"ok":    false,
			"error": "Invalid JSON.",
		})
	}

	result, err := h.svc.Submit(c.Request().Context(), req.Note, c.RealIP())
	if err != nil {
		return h.mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"ok":             true,
		"ref":            result.Ref,
		"receiptUrl":     result.ReceiptURL,
		"message":        result.Ack,
		"counter":        result.Counter,
		"remainingToday": result.RemainingToday,
	})
}

// HandleReceipt handles GET /api/receipt/:ref.
// The reference is case-insensitive.
func (h *Handler) HandleReceipt(c echo.Context) error {
	view, err := h.svc.Receipt(c.Request().Context(), c.Param("ref"))
	if err != nil {
		return h.mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"ok":          true,
		"ref":         view.Ref,
		"timestamp":   view.Timestamp,
		"message":     view.Ack,
		"fingerprint": view.Fingerprint,
	})
}

// HandleVerify handles POST /api/verify.
// Re-hashes the candidate note server-side and reports whether it matches
// the receipt's fingerprint. The server salt never leaves the process, so
// this is the only place a verification can actually run.
func (h *Handler) HandleVerify(c echo.Context) error {
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"ok":    false,
			"error": "Invalid JSON.",
		})
	}
	if req.Ref == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"ok":    false,
			"error": "Missing reference.",
		})
	}

	result, err := h.svc.Verify(c.Request().Context(), req.Ref, req.Note)
	if err != nil {
		return h.mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"ok":    true,
		"ref":   result.Ref,
		"match": result.Match,
	})
}

// HandleCounter handles GET /api/counter.
// Returns the all-time accepted submission count.
func (h *Handler) HandleCounter(c echo.Context) error {
	counter, err := h.svc.Counter(c.Request().Context())
	if err != nil {
		return h.mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"ok":      true,
		"counter": counter,
	})
}

// HandleHealth handles GET /health.
// Returns the health status of the server, including database connectivity.
func (h *Handler) HandleHealth(c echo.Context) error {
	status := "healthy"
	dbStatus := "connected"

	if err := h.db.HealthCheck(c.Request().Context()); err != nil {
		status = "degraded"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":   status,
		"database": dbStatus,
	})
}

// mapServiceError translates service-layer errors into appropriate HTTP
// responses, keeping the {ok:false, error} envelope uniform.
func (h *Handler) mapServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrEmptyNote):
		return c.JSON(http.StatusBadRequest, echo.Map{
			"ok":    false,
			"error": "Empty submission.",
		})
	case errors.Is(err, service.ErrDailyLimit):
		// The quota response includes the public counter for UI context;
		// best effort if that read fails too.
		counter, cerr := h.svc.Counter(c.Request().Context())
		if cerr != nil {
			slog.Error("failed to read counter for quota response", "error", cerr)
		}
		return c.JSON(http.StatusTooManyRequests, echo.Map{
			"ok":             false,
			"error":          "Daily limit reached.",
			"remainingToday": 0,
			"counter":        counter,
		})
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{
			"ok":    false,
			"error": "Receipt not found.",
		})
	default:
		slog.Error("request failed", "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"ok":    false,
			"error": "Internal server error.",
		})
	}
}
