package response

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// StatusBody is the success shape of write endpoints.
type StatusBody struct {
	Status string `json:"status"`
	ID     string `json:"id,omitempty"`
}

// ErrorBody is the shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
}

// OK sends a 200 response with data as the body.
func OK(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, data)
}

// Created sends 201 {"status":"success","id":id}.
func Created(c echo.Context, id string) error {
	return c.JSON(http.StatusCreated, StatusBody{Status: "success", ID: id})
}

// Error sends a JSON error response using ErrorBody.
func Error(c echo.Context, status int, message string) error {
	return c.JSON(status, ErrorBody{Error: message})
}

// BadRequest sends 400 with message.
func BadRequest(c echo.Context, message string) error {
	return Error(c, http.StatusBadRequest, message)
}

// Unauthorized sends 401 {"error":"Unauthorized"}. The body never says why.
func Unauthorized(c echo.Context) error {
	return Error(c, http.StatusUnauthorized, "Unauthorized")
}

// NotFound sends 404 with message.
func NotFound(c echo.Context, message string) error {
	return Error(c, http.StatusNotFound, message)
}

// InternalError sends 500 with message.
func InternalError(c echo.Context, message string) error {
	return Error(c, http.StatusInternalServerError, message)
}

// HTTPErrorHandler renders errors that escape handlers (router 404/405,
// body-limit 413, panics caught by Recover) with the same ErrorBody shape.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status := http.StatusInternalServerError
		message := http.StatusText(status)
		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			if m, ok := he.Message.(string); ok {
				message = m
			} else {
				message = http.StatusText(status)
			}
		}
		if status >= http.StatusInternalServerError {
			logger.Error().Err(err).Str("path", c.Request().URL.Path).Msg("unhandled error")
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = Error(c, status, message)
		}
		if err != nil {
			logger.Error().Err(err).Msg("write error response")
		}
	}
}
