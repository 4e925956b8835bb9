package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/leadscope/leadscope/internal/linkedin"
	"github.com/leadscope/leadscope/internal/store"
)

// storeErr maps store errors to HTTP errors.
func storeErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

// upstreamErr maps LinkedIn client errors to HTTP errors: 429 passes
// through, everything else from the upstream is a bad gateway.
func upstreamErr(err error) error {
	switch {
	case errors.Is(err, linkedin.ErrRateLimited):
		return echo.NewHTTPError(http.StatusTooManyRequests, "linkedin api rate limited, retry later")
	case errors.Is(err, linkedin.ErrUnauthorized):
		return echo.NewHTTPError(http.StatusBadGateway, "linkedin api rejected configured credentials")
	default:
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
}
