package http

import "github.com/labstack/echo/v4"

// Handler attaches a group of routes to the echo instance.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}
