package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"mukando/internal/middleware"
)

func newDeduper(t *testing.T) middleware.CallbackDeduper {
	t.Helper()
	// Empty addr selects the in-memory implementation.
	d, err := middleware.NewCallbackDeduper("", "", 0, time.Minute)
	require.NoError(t, err)
	return d
}

func TestCallbackDeduper_SeenOnlyAfterMark(t *testing.T) {
	d := newDeduper(t)

	seen, err := d.Seen(context.Background(), "MKD-1:ABCDEF")
	require.NoError(t, err)
	require.False(t, seen)

	// Checking never marks.
	seen, err = d.Seen(context.Background(), "MKD-1:ABCDEF")
	require.NoError(t, err)
	require.False(t, seen)

	require.NoError(t, d.Mark(context.Background(), "MKD-1:ABCDEF"))

	seen, err = d.Seen(context.Background(), "MKD-1:ABCDEF")
	require.NoError(t, err)
	require.True(t, seen)

	// Different hash for the same reference is a different delivery.
	seen, err = d.Seen(context.Background(), "MKD-1:FEDCBA")
	require.NoError(t, err)
	require.False(t, seen)
}

func invokeCallback(t *testing.T, mw echo.MiddlewareFunc, body string, next echo.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/payments/callback", strings.NewReader(body))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	require.NoError(t, mw(next)(c))
	return rec
}

// appliedHandler mimics the callback handler's ack contract: it flags the
// delivery as applied only when it succeeded.
func appliedHandler(calls *int, apply bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		*calls++
		if apply {
			c.Set(middleware.CallbackApplied, true)
		}
		return c.NoContent(http.StatusOK)
	}
}

func TestCallbackDedup_ShortCircuitsRedelivery(t *testing.T) {
	mw := middleware.CallbackDedup(newDeduper(t))
	body := "reference=MKD-1\nstatus=Paid\nhash=ABC123"

	nextCalls := 0
	next := appliedHandler(&nextCalls, true)

	invokeCallback(t, mw, body, next)
	require.Equal(t, 1, nextCalls)

	rec := invokeCallback(t, mw, body, next)
	require.Equal(t, 1, nextCalls)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"success":true`)
}

// A delivery the handler rejected must not be remembered: its redelivery
// gets the full path again instead of a synthetic success ack.
func TestCallbackDedup_RejectedDeliveryRetried(t *testing.T) {
	mw := middleware.CallbackDedup(newDeduper(t))
	body := "reference=MKD-1\nstatus=Paid\nhash=ABC123"

	nextCalls := 0
	invokeCallback(t, mw, body, appliedHandler(&nextCalls, false))
	require.Equal(t, 1, nextCalls)

	// Redelivery after the transient failure cleared.
	invokeCallback(t, mw, body, appliedHandler(&nextCalls, true))
	require.Equal(t, 2, nextCalls)

	// Now it sticks.
	invokeCallback(t, mw, body, appliedHandler(&nextCalls, true))
	require.Equal(t, 2, nextCalls)
}

func TestCallbackDedup_PassesThroughWithoutReferenceOrHash(t *testing.T) {
	mw := middleware.CallbackDedup(newDeduper(t))
	body := "status=Paid"

	nextCalls := 0
	next := appliedHandler(&nextCalls, true)

	invokeCallback(t, mw, body, next)
	invokeCallback(t, mw, body, next)
	require.Equal(t, 2, nextCalls)
}

func TestCallbackDedup_NextSeesFullBody(t *testing.T) {
	mw := middleware.CallbackDedup(newDeduper(t))
	body := "reference=MKD-2\nstatus=Paid\nhash=DEF456"

	var got string
	next := func(c echo.Context) error {
		b := make([]byte, len(body))
		n, _ := c.Request().Body.Read(b)
		got = string(b[:n])
		return c.NoContent(http.StatusOK)
	}

	invokeCallback(t, mw, body, next)
	require.Equal(t, body, got)
}
