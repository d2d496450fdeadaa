package handler

import "github.com/labstack/echo/v4"

// API responses share one envelope: {"success": bool, "data"|"error"|"message": ...}.
// Internal failure detail never leaves the process; callers get a generic
// error string and the specifics go to the server log.

func success(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, echo.Map{"success": true, "data": data})
}

func message(c echo.Context, status int, msg string) error {
	return c.JSON(status, echo.Map{"success": true, "message": msg})
}

func fail(c echo.Context, status int, msg string) error {
	return c.JSON(status, echo.Map{"success": false, "error": msg})
}
