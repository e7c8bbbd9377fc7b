package submission

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medicai/docserver/pkg/pagination"
)

// OperatorHeader carries the reviewing clinician's identity. The fronting
// gateway authenticates; this service only attributes actions.
const OperatorHeader = "X-Operator-Email"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/submissions", h.List)
	api.GET("/submissions/:id", h.Get)
	api.POST("/submissions/:id/approve", h.Approve)
	api.POST("/submissions/:id/reject", h.Reject)
	api.POST("/submissions/:id/revert-approval", h.RevertApproval)
	api.GET("/submissions/:id/approval-events", h.ApprovalEvents)
	api.POST("/submissions/:id/document-data", h.SaveDraftFields)
}

func operatorEmail(c echo.Context) string {
	return c.Request().Header.Get(OperatorHeader)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	sub, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "submission not found")
	}
	return c.JSON(http.StatusOK, sub)
}

type approvalRequest struct {
	Notes *string `json:"notes,omitempty"`
}

func (h *Handler) Approve(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	operator := operatorEmail(c)
	if operator == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing "+OperatorHeader+" header")
	}
	var req approvalRequest
	_ = c.Bind(&req) // body optional

	sub, err := h.svc.Approve(c.Request().Context(), id, operator, req.Notes)
	if err != nil {
		if errors.Is(err, ErrAlreadyApproved) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, sub)
}

func (h *Handler) Reject(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	operator := operatorEmail(c)
	if operator == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing "+OperatorHeader+" header")
	}
	var req approvalRequest
	_ = c.Bind(&req)

	sub, err := h.svc.Reject(c.Request().Context(), id, operator, req.Notes)
	if err != nil {
		if errors.Is(err, ErrAlreadyApproved) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, sub)
}

func (h *Handler) RevertApproval(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	operator := operatorEmail(c)
	if operator == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing "+OperatorHeader+" header")
	}

	sub, err := h.svc.RevertApproval(c.Request().Context(), id, operator)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, sub)
}

func (h *Handler) ApprovalEvents(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	events, err := h.svc.ApprovalEvents(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, events)
}

func (h *Handler) SaveDraftFields(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var fields DraftFields
	if err := c.Bind(&fields); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.SaveDraftFields(c.Request().Context(), id, fields); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
