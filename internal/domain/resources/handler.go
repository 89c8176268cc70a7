// Package resources exposes the FHIR read surface: per-resource search and
// id lookup, all driven by the search schema registry rather than
// per-resource handler code.
package resources

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/healthtech/platform/internal/platform/fhir"
	"github.com/healthtech/platform/internal/search"
)

type Handler struct {
	engine *search.Engine
}

func NewHandler(engine *search.Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/Encounter", h.search(search.Encounter))
	g.GET("/Encounter/:id", h.get(search.Encounter))
	g.GET("/Observation", h.search(search.Observation))
	g.GET("/Observation/:id", h.get(search.Observation))
	// Patient is id-lookup only; it has no search endpoint.
	g.GET("/Patient/:id", h.get(search.Patient))
}

func (h *Handler) search(s *search.Schema) echo.HandlerFunc {
	return func(c echo.Context) error {
		filters := make(map[string]string)
		for name, values := range c.QueryParams() {
			if name == "_count" || name == "_offset" {
				continue
			}
			if len(values) > 0 {
				filters[name] = values[0]
			}
		}

		bundle, err := h.engine.Search(
			c.Request().Context(), s, filters,
			c.QueryParam("_count"), c.QueryParam("_offset"),
		)
		if err != nil {
			return writeError(c, s, err)
		}
		return fhir.OK(c, bundle)
	}
}

func (h *Handler) get(s *search.Schema) echo.HandlerFunc {
	return func(c echo.Context) error {
		resource, err := h.engine.Get(c.Request().Context(), s, c.Param("id"))
		if err != nil {
			return writeError(c, s, err)
		}
		return fhir.OK(c, resource)
	}
}

// writeError is the single translation point from the engine's error
// taxonomy to transport statuses. Validation messages go back verbatim;
// internal detail never does.
func writeError(c echo.Context, s *search.Schema, err error) error {
	switch {
	case search.IsValidation(err):
		return fhir.Error(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, search.ErrNotFound):
		return fhir.Error(c, http.StatusNotFound, s.ResourceType+" not found")
	default:
		return fhir.Error(c, http.StatusInternalServerError, "Internal Server Error")
	}
}
