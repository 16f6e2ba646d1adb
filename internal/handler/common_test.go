package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gighall/crewbook/internal/ledger"
	"github.com/gighall/crewbook/internal/repository"
)

func newTestContext(t *testing.T) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func decodeFailure(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestGetUserIDAcceptsCommonClaimTypes(t *testing.T) {
	for _, v := range []interface{}{uint64(7), int(7), int64(7), float64(7), "7"} {
		c, _ := newTestContext(t)
		c.Set("user_id", v)
		id, err := getUserID(c)
		require.NoError(t, err)
		assert.Equal(t, uint64(7), id)
	}
}

func TestGetUserIDRejectsMissing(t *testing.T) {
	c, _ := newTestContext(t)
	_, err := getUserID(c)
	assert.Error(t, err)
}

func TestPathIDRejectsZeroAndGarbage(t *testing.T) {
	for _, raw := range []string{"0", "-3", "abc", ""} {
		c, _ := newTestContext(t)
		c.SetParamNames("id")
		c.SetParamValues(raw)
		_, err := pathID(c, "id")
		assert.Error(t, err, "value %q", raw)
	}
}

func TestPathIndexAcceptsZero(t *testing.T) {
	c, _ := newTestContext(t)
	c.SetParamNames("idx")
	c.SetParamValues("0")
	n, err := pathIndex(c, "idx")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestLedgerFailureMapsEachSentinel(t *testing.T) {
	cases := []struct {
		err    error
		status int
		reason string
	}{
		{ledger.ErrRoleOutOfRange, http.StatusNotFound, "NotFound"},
		{ledger.ErrRoleFull, http.StatusConflict, "RoleFull"},
		{ledger.ErrRoleLocked, http.StatusConflict, "RoleLocked"},
		{ledger.ErrApplicantCapReached, http.StatusConflict, "ApplicantCapReached"},
		{ledger.ErrAlreadyApplied, http.StatusConflict, "AlreadyApplied"},
		{ledger.ErrAlreadyBooked, http.StatusConflict, "AlreadyBooked"},
		{ledger.ErrNotAssociated, http.StatusConflict, "NotAssociated"},
		{ledger.ErrInvariantViolation, http.StatusConflict, "InvariantViolation"},
	}
	for _, tc := range cases {
		c, rec := newTestContext(t)
		require.NoError(t, ledgerFailure(c, tc.err))
		assert.Equal(t, tc.status, rec.Code, tc.reason)
		assert.Equal(t, tc.reason, decodeFailure(t, rec)["error"])
	}
}

func TestRepoFailureMapsSentinels(t *testing.T) {
	cases := []struct {
		err    error
		status int
		reason string
	}{
		{repository.ErrGigNotFound, http.StatusNotFound, "NotFound"},
		{repository.ErrRoleNotFound, http.StatusNotFound, "NotFound"},
		{repository.ErrForbidden, http.StatusForbidden, "Unauthorized"},
		{repository.ErrNotBandGig, http.StatusConflict, "InvalidState"},
		{repository.ErrSealed, http.StatusConflict, "InvalidState"},
		{repository.ErrChatExists, http.StatusConflict, "AlreadyExists"},
		{repository.ErrChatMissing, http.StatusConflict, "InvalidState"},
		{repository.ErrCannotRemoveCreator, http.StatusConflict, "CannotRemoveCreator"},
	}
	for _, tc := range cases {
		c, rec := newTestContext(t)
		require.NoError(t, repoFailure(c, tc.err, "boom"))
		assert.Equal(t, tc.status, rec.Code, tc.reason)
		assert.Equal(t, tc.reason, decodeFailure(t, rec)["error"])
	}
}

func TestRepoFailureFallsBackTo500(t *testing.T) {
	c, rec := newTestContext(t)
	require.NoError(t, repoFailure(c, assert.AnError, "load gig failed"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeFailure(t, rec)
	assert.Equal(t, "Internal", body["error"])
	assert.Equal(t, "load gig failed", body["message"])
}
