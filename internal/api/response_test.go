package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koalychatbot/koaly-telegram-bot/internal/types"
)

func TestError_AppErrorKeepsCodeAndStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(types.WithRequestID(req.Context(), "req-1"))

	Error(rec, req, types.NewAppError(types.ErrCodeLimitDailyMessages, "daily limit reached", nil))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(types.ErrCodeLimitDailyMessages), resp.Error.Code)
	assert.Equal(t, "req-1", resp.Error.RequestID)
}

func TestError_GenericErrorHidesDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	Error(rec, req, errors.New("pgx: connection refused at 10.0.0.5"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.5")
	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(types.ErrCodeInternalUnexpected), resp.Error.Code)
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		UserID string `json:"user_id"`
	}

	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "valid", body: `{"user_id":"1"}`, wantErr: false},
		{name: "empty body", body: "", wantErr: true},
		{name: "syntax error", body: `{"user_id":`, wantErr: true},
		{name: "unknown field", body: `{"user_id":"1","extra":true}`, wantErr: true},
		{name: "two documents", body: `{"user_id":"1"}{"user_id":"2"}`, wantErr: true},
		{name: "wrong type", body: `{"user_id":42}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))

			var dst payload
			err := DecodeJSON(rec, req, &dst)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var appErr *types.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, types.ErrCodeValidationInvalidJSON, appErr.Code)
		})
	}
}
