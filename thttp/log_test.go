package thttp

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ridge/livequery/test"
	"github.com/stretchr/testify/assert"
)

func TestLog(t *testing.T) {
	ctx := test.Context(t)

	handler := Log(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		_, err = w.Write(data)
		assert.NoError(t, err)
	}))

	r := httptest.NewRequest(http.MethodPost, "http://localhost", nil).WithContext(ctx)
	r.Body = io.NopCloser(strings.NewReader("hello"))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	res := w.Result()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	body, err := io.ReadAll(res.Body)
	assert.NoError(t, err)
	assert.Equal(t, []byte("hello"), body)
	res.Body.Close()
}

func TestCaptureStatus(t *testing.T) {
	var status int
	w := httptest.NewRecorder()
	cw := CaptureStatus(w, &status)
	cw.WriteHeader(http.StatusTeapot)
	assert.Equal(t, http.StatusTeapot, status)

	status = 0
	w = httptest.NewRecorder()
	cw = CaptureStatus(w, &status)
	_, err := cw.Write([]byte("hello"))
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
}
