package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func cronRequest(handler http.Handler, header, value string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/cron/recalculate", nil)
	if header != "" {
		req.Header.Set(header, value)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestCronTokenAcceptsMatchingToken(t *testing.T) {
	handler := CronToken("cron-secret", nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))

	assert.Equal(t, http.StatusNoContent, cronRequest(handler, cronTokenHeader, "cron-secret").Code)
	assert.Equal(t, http.StatusNoContent, cronRequest(handler, "Authorization", "Bearer cron-secret").Code)
}

func TestCronTokenRejectsMismatch(t *testing.T) {
	handler := CronToken("cron-secret", nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))

	assert.Equal(t, http.StatusUnauthorized, cronRequest(handler, cronTokenHeader, "wrong").Code)
	assert.Equal(t, http.StatusUnauthorized, cronRequest(handler, "", "").Code)
}

func TestCronTokenDisabledWhenUnset(t *testing.T) {
	handler := CronToken("", nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))

	assert.Equal(t, http.StatusNotFound, cronRequest(handler, cronTokenHeader, "anything").Code)
}
