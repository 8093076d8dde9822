package httputil

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/grant/pkg/observability"
)

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		expectError bool
	}{
		{name: "valid JSON", body: `{"name": "test"}`},
		{name: "invalid JSON", body: `{invalid}`, expectError: true},
		{name: "empty body", body: ``, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/test", bytes.NewBufferString(tt.body))
			var dest map[string]string

			err := ParseJSON(req, &dest)

			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, "test", dest["name"])
			}
		})
	}
}

func TestParsePathString(t *testing.T) {
	req := httptest.NewRequest("GET", "/principals/abc", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "abc"})

	id, err := ParsePathString(req, "id")
	require.NoError(t, err)
	assert.Equal(t, "abc", id)

	_, err = ParsePathString(req, "missing")
	assert.Error(t, err)
}

func TestParseQuery(t *testing.T) {
	req := httptest.NewRequest("GET", "/x?limit=7&resolved=true&bad=zz&items=a,%20b,,c&items=d", nil)

	limit, err := ParseQueryInt(req, "limit", 20)
	require.NoError(t, err)
	assert.Equal(t, 7, limit)

	def, err := ParseQueryInt(req, "absent", 20)
	require.NoError(t, err)
	assert.Equal(t, 20, def)

	_, err = ParseQueryInt(req, "bad", 0)
	assert.Error(t, err)

	resolved, err := ParseQueryBool(req, "resolved", false)
	require.NoError(t, err)
	assert.True(t, resolved)

	assert.Equal(t, []string{"a", "b", "c", "d"}, ParseQueryList(req, "items"))
	assert.Nil(t, ParseQueryList(req, "none"))
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(observability.NopLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"success":false`)
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = observability.GetRequestID(r.Context())
	}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "given")
	handler.ServeHTTP(w, req)
	assert.Equal(t, "given", seen)
	assert.Equal(t, "given", w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	assert.NotEmpty(t, seen)
	assert.NotEqual(t, "given", seen)
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(mw("a"), mw("b"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, []string{"a", "b"}, order)
}
