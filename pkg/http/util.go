package http

import (
	"time"

	xutil "BankStats/pkg/util"

	"github.com/labstack/echo/v4"
)

// QueryDateRange reads optional "from" and "to" query parameters as calendar days.
func QueryDateRange(c echo.Context) (time.Time, time.Time, error) {
	return xutil.ParseDateRange(c.QueryParam("from"), c.QueryParam("to"))
}

// QueryInt reads an integer query parameter, falling back to def.
func QueryInt(c echo.Context, name string, def int) int {
	return xutil.ParseIntDefault(c.QueryParam(name), def)
}
