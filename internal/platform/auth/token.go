// Package auth implements the platform's request gate: a fixed
// shared-secret bearer check. Requests that reach the handlers are assumed
// authorized; no per-tenant filtering happens downstream.
package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/healthtech/platform/internal/platform/fhir"
)

// TokenMiddleware rejects requests whose Authorization header does not
// carry the configured token (either bare or as "Bearer <token>"). An
// empty configured token disables the check for local development.
func TokenMiddleware(token string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if token == "" {
				return next(c)
			}

			presented := c.Request().Header.Get(echo.HeaderAuthorization)
			presented = strings.TrimPrefix(presented, "Bearer ")
			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				outcome := fhir.NewOperationOutcome(fhir.IssueSeverityError, fhir.IssueTypeSecurity, "Unauthorized")
				b, _ := json.Marshal(outcome)
				return c.Blob(http.StatusUnauthorized, fhir.MIMEFHIRJSON, b)
			}
			return next(c)
		}
	}
}
