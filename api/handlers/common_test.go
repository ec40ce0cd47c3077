package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/arpublish/types"
)

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestWriteJSON_SetsHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusAccepted, map[string]string{"state": "busy"})

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.JSONEq(t, `{"state":"busy"}`, w.Body.String())
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, map[string]any{"strategy": "token"})

	resp := decodeEnvelope(t, w)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Error)
	assert.Equal(t, map[string]any{"strategy": "token"}, resp.Data)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestWriteError_WorkflowCodes(t *testing.T) {
	tests := []struct {
		code   types.ErrorCode
		status int
	}{
		{types.ErrBusy, http.StatusConflict},
		{types.ErrNoSubjectLoaded, http.StatusUnprocessableEntity},
		{types.ErrUnsupported, http.StatusUnprocessableEntity},
		{types.ErrExportFailure, http.StatusInternalServerError},
		{types.ErrEncodingFailure, http.StatusInternalServerError},
		{types.ErrPublishFailure, http.StatusBadGateway},
		{types.ErrInvalidRequest, http.StatusBadRequest},
		{types.ErrUnauthorized, http.StatusUnauthorized},
		{types.ErrNotFound, http.StatusNotFound},
		{types.ErrRateLimited, http.StatusTooManyRequests},
		{types.ErrInternalError, http.StatusInternalServerError},
		{types.ErrorCode("SOMETHING_NEW"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, types.NewError(tt.code, "boom"), zap.NewNop())

			assert.Equal(t, tt.status, w.Code)
			resp := decodeEnvelope(t, w)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, string(tt.code), resp.Error.Code)
			assert.Equal(t, "boom", resp.Error.Message)
		})
	}
}

func TestWriteError_ExplicitStatusAndRetryable(t *testing.T) {
	w := httptest.NewRecorder()
	err := types.NewError(types.ErrPublishFailure, "upload rejected").
		WithHTTPStatus(http.StatusServiceUnavailable).
		WithRetryable(true)
	WriteError(w, err, nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	resp := decodeEnvelope(t, w)
	assert.True(t, resp.Error.Retryable)
}

func TestWriteError_DoesNotLeakCause(t *testing.T) {
	w := httptest.NewRecorder()
	err := types.NewError(types.ErrPublishFailure, "publish failed").
		WithCause(errors.New("dial tcp 10.0.0.7:443: connection refused"))
	WriteError(w, err, zap.NewNop())

	assert.NotContains(t, w.Body.String(), "10.0.0.7")
}

func TestWriteErrorFrom(t *testing.T) {
	t.Run("wrapped typed error keeps its code", func(t *testing.T) {
		w := httptest.NewRecorder()
		err := fmt.Errorf("start: %w", types.NewError(types.ErrBusy, "a cycle is already running"))
		WriteErrorFrom(w, err, zap.NewNop())

		assert.Equal(t, http.StatusConflict, w.Code)
		resp := decodeEnvelope(t, w)
		assert.Equal(t, string(types.ErrBusy), resp.Error.Code)
	})

	t.Run("plain error becomes internal", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteErrorFrom(w, errors.New("disk full"), zap.NewNop())

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		resp := decodeEnvelope(t, w)
		assert.Equal(t, string(types.ErrInternalError), resp.Error.Code)
		assert.NotContains(t, resp.Error.Message, "disk full")
	})
}

func TestWriteErrorMessage(t *testing.T) {
	w := httptest.NewRecorder()
	WriteErrorMessage(w, http.StatusNotFound, types.ErrNotFound, "preview handle not found", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	resp := decodeEnvelope(t, w)
	assert.Equal(t, "preview handle not found", resp.Error.Message)
}

func TestDecodeJSONBody(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"subjects", `{"subjects":[{"id":"1CRN","title":"Crambin"}]}`, false},
		{"empty list", `{"subjects":[]}`, false},
		{"unknown field", `{"subjects":[],"format":"glb"}`, true},
		{"malformed", `{"subjects":[`, true},
		{"wrong type", `{"subjects":"1CRN"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPut, "/api/v1/subjects", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			var dst SubjectsRequest

			err := DecodeJSONBody(w, r, &dst, zap.NewNop())
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, types.IsCode(err, types.ErrInvalidRequest))
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestDecodeJSONBody_NilBody(t *testing.T) {
	r := httptest.NewRequest(http.MethodPut, "/api/v1/subjects", nil)
	r.Body = nil
	w := httptest.NewRecorder()

	err := DecodeJSONBody(w, r, &SubjectsRequest{}, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDecodeJSONBody_SizeLimit(t *testing.T) {
	title := strings.Repeat("a", 1<<20)
	body := `{"subjects":[{"id":"1CRN","title":"` + title + `"}]}`
	r := httptest.NewRequest(http.MethodPut, "/api/v1/subjects", strings.NewReader(body))
	w := httptest.NewRecorder()

	err := DecodeJSONBody(w, r, &SubjectsRequest{}, zap.NewNop())
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	small := `{"subjects":[{"id":"1CRN","title":"` + strings.Repeat("a", 1024) + `"}]}`
	r = httptest.NewRequest(http.MethodPut, "/api/v1/subjects", strings.NewReader(small))
	var dst SubjectsRequest
	require.NoError(t, DecodeJSONBody(httptest.NewRecorder(), r, &dst, zap.NewNop()))
	assert.Len(t, dst.Subjects[0].Title, 1024)
}

func TestValidateContentType(t *testing.T) {
	tests := []struct {
		contentType string
		valid       bool
	}{
		{"application/json", true},
		{"application/json; charset=utf-8", true},
		{"Application/JSON", true},
		{"multipart/form-data; boundary=x", false},
		{"text/plain", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPut, "/api/v1/subjects", nil)
			if tt.contentType != "" {
				r.Header.Set("Content-Type", tt.contentType)
			}
			w := httptest.NewRecorder()

			assert.Equal(t, tt.valid, ValidateContentType(w, r, zap.NewNop()))
			if !tt.valid {
				assert.Equal(t, http.StatusBadRequest, w.Code)
			}
		})
	}
}

func TestResponseWriter_CapturesFirstStatus(t *testing.T) {
	w := httptest.NewRecorder()
	rw := NewResponseWriter(w)
	assert.Equal(t, http.StatusOK, rw.StatusCode)

	rw.WriteHeader(http.StatusAccepted)
	rw.WriteHeader(http.StatusConflict)
	_, err := rw.Write([]byte("ok"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusAccepted, rw.StatusCode)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Same(t, w, rw.Unwrap())
}

func TestResponseWriter_Hijack(t *testing.T) {
	_, _, err := NewResponseWriter(httptest.NewRecorder()).Hijack()
	assert.ErrorIs(t, err, http.ErrNotSupported)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, buf, err := NewResponseWriter(w).Hijack()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer conn.Close()
		_, _ = buf.WriteString("HTTP/1.1 204 No Content\r\nConnection: close\r\n\r\n")
		_ = buf.Flush()
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

var _ http.Hijacker = (*ResponseWriter)(nil)
