package handler // handler defines http handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gighall/crewbook/internal/ledger"
	"github.com/gighall/crewbook/internal/repository"
)

// timeNow stamps history entry ids and chat creation times.
func timeNow() time.Time { return time.Now().UTC() }

// getUserID extracts the user_id from echo.Context and converts it to uint64.
func getUserID(c echo.Context) (uint64, error) {
	v := c.Get("user_id")
	switch t := v.(type) {
	case uint64:
		return t, nil
	case int:
		return uint64(t), nil
	case int64:
		return uint64(t), nil
	case float64:
		return uint64(t), nil
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// userRole returns the directory role stored in context by JWTAuth.
func userRole(c echo.Context) string {
	if s, ok := c.Get("role").(string); ok {
		return s
	}
	return ""
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, error) {
	n, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || n == 0 {
		return 0, errors.New("invalid " + name)
	}
	return n, nil
}

// pathIndex parses a zero-based role index path parameter.
func pathIndex(c echo.Context, name string) (int, error) {
	n, err := strconv.Atoi(c.Param(name))
	if err != nil || n < 0 {
		return 0, errors.New("invalid " + name)
	}
	return n, nil
}

// failure is the error payload every handler returns: a machine-readable
// reason plus the specific message, never a generic one.
func failure(c echo.Context, status int, reason, message string) error {
	return c.JSON(status, echo.Map{"error": reason, "message": message})
}

// ledgerFailure maps a ledger invariant error onto the HTTP surface.  Each
// sentinel keeps its own reason string so callers always see the precise
// cause of rejection.
func ledgerFailure(c echo.Context, err error) error {
	switch {
	case errors.Is(err, ledger.ErrRoleOutOfRange):
		return failure(c, http.StatusNotFound, "NotFound", err.Error())
	case errors.Is(err, ledger.ErrRoleFull):
		return failure(c, http.StatusConflict, "RoleFull", err.Error())
	case errors.Is(err, ledger.ErrRoleLocked):
		return failure(c, http.StatusConflict, "RoleLocked", err.Error())
	case errors.Is(err, ledger.ErrApplicantCapReached):
		return failure(c, http.StatusConflict, "ApplicantCapReached", err.Error())
	case errors.Is(err, ledger.ErrAlreadyApplied):
		return failure(c, http.StatusConflict, "AlreadyApplied", err.Error())
	case errors.Is(err, ledger.ErrAlreadyBooked):
		return failure(c, http.StatusConflict, "AlreadyBooked", err.Error())
	case errors.Is(err, ledger.ErrNotAssociated):
		return failure(c, http.StatusConflict, "NotAssociated", err.Error())
	case errors.Is(err, ledger.ErrInvariantViolation):
		return failure(c, http.StatusConflict, "InvariantViolation", err.Error())
	}
	return failure(c, http.StatusInternalServerError, "Internal", "ledger validation failed")
}

// repoFailure maps repository sentinels onto the HTTP surface; unknown
// errors become a 500 with the given fallback message.
func repoFailure(c echo.Context, err error, fallback string) error {
	switch {
	case errors.Is(err, repository.ErrGigNotFound):
		return failure(c, http.StatusNotFound, "NotFound", "gig not found")
	case errors.Is(err, repository.ErrRoleNotFound):
		return failure(c, http.StatusNotFound, "NotFound", "band role not found")
	case errors.Is(err, repository.ErrForbidden):
		return failure(c, http.StatusForbidden, "Unauthorized", "actor is not the gig owner")
	case errors.Is(err, repository.ErrNotBandGig):
		return failure(c, http.StatusConflict, "InvalidState", "gig is not a band gig")
	case errors.Is(err, repository.ErrSealed):
		return failure(c, http.StatusConflict, "InvalidState", "gig is fully booked; role edits are disabled")
	case errors.Is(err, repository.ErrChatExists):
		return failure(c, http.StatusConflict, "AlreadyExists", "crew chat already exists")
	case errors.Is(err, repository.ErrChatMissing):
		return failure(c, http.StatusConflict, "InvalidState", "crew chat has not been created")
	case errors.Is(err, repository.ErrCannotRemoveCreator):
		return failure(c, http.StatusConflict, "CannotRemoveCreator", "gig creator cannot be removed from the crew chat")
	case errors.Is(err, repository.ErrConflict):
		return failure(c, http.StatusConflict, "AlreadyExists", err.Error())
	}
	return failure(c, http.StatusInternalServerError, "Internal", fallback)
}
