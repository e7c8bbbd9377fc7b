package document

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medicai/docserver/internal/domain/submission"
	"github.com/medicai/docserver/internal/platform/aiassist"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/reviews/:id", h.Open)
	api.GET("/reviews/:id", h.State)
	api.DELETE("/reviews/:id", h.Close)
	api.PUT("/reviews/:id/draft", h.UpdateDraft)
	api.POST("/reviews/:id/generate", h.Generate)
	api.GET("/reviews/:id/preview", h.Preview)
	api.GET("/reviews/:id/artifact", h.Artifact)
	api.POST("/reviews/:id/save", h.Save)
	api.POST("/reviews/:id/send", h.Send)
	api.POST("/reviews/:id/suggest", h.Suggest)
}

func reviewID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func sessionError(err error) error {
	switch {
	case errors.Is(err, ErrNoSession):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNoArtifact), errors.Is(err, ErrStaleArtifact):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) Open(c echo.Context) error {
	id, err := reviewID(c)
	if err != nil {
		return err
	}
	operator := c.Request().Header.Get(submission.OperatorHeader)
	view, err := h.svc.Open(c.Request().Context(), id, operator)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "submission not found")
	}
	return c.JSON(http.StatusCreated, view)
}

func (h *Handler) State(c echo.Context) error {
	id, err := reviewID(c)
	if err != nil {
		return err
	}
	view, err := h.svc.State(id)
	if err != nil {
		return sessionError(err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) Close(c echo.Context) error {
	id, err := reviewID(c)
	if err != nil {
		return err
	}
	h.svc.Close(id)
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) UpdateDraft(c echo.Context) error {
	id, err := reviewID(c)
	if err != nil {
		return err
	}
	var draft Draft
	if err := c.Bind(&draft); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	view, err := h.svc.UpdateDraft(id, draft)
	if err != nil {
		return sessionError(err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) Generate(c echo.Context) error {
	id, err := reviewID(c)
	if err != nil {
		return err
	}
	view, err := h.svc.Generate(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNoSession) {
			return sessionError(err)
		}
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) Preview(c echo.Context) error {
	id, err := reviewID(c)
	if err != nil {
		return err
	}
	html, err := h.svc.Preview(id)
	if err != nil {
		return sessionError(err)
	}
	return c.HTML(http.StatusOK, html)
}

func (h *Handler) Artifact(c echo.Context) error {
	id, err := reviewID(c)
	if err != nil {
		return err
	}
	artifact, err := h.svc.CurrentArtifact(id)
	if err != nil {
		return sessionError(err)
	}
	return c.Blob(http.StatusOK, artifact.ContentType, artifact.Content)
}

func (h *Handler) Save(c echo.Context) error {
	id, err := reviewID(c)
	if err != nil {
		return err
	}
	view, err := h.svc.Save(c.Request().Context(), id)
	if err != nil {
		return sessionError(err)
	}
	return c.JSON(http.StatusOK, view)
}

type sendRequest struct {
	Primary    string `json:"primary"`
	Additional string `json:"additional,omitempty"`
}

func (h *Handler) Send(c echo.Context) error {
	id, err := reviewID(c)
	if err != nil {
		return err
	}
	var req sendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Primary == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "primary recipient is required")
	}

	report, err := h.svc.Send(c.Request().Context(), id, req.Primary, req.Additional)
	if err != nil {
		if report != nil {
			// Linking failed part-way: return the step report with the error.
			return c.JSON(http.StatusBadGateway, report)
		}
		return sessionError(err)
	}
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) Suggest(c echo.Context) error {
	id, err := reviewID(c)
	if err != nil {
		return err
	}
	suggestion, err := h.svc.Suggest(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNoSession) {
			return sessionError(err)
		}
		if errors.Is(err, aiassist.ErrNotConfigured) {
			return echo.NewHTTPError(http.StatusNotFound, "ai assist is not available")
		}
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"suggestion": suggestion})
}
