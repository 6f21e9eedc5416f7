package assets

import (
	"errors"
	"html/template"
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testFS = fstest.MapFS{
	"layout.html": {Data: []byte(`<title>{{ block "title" . }}SmartSchedule{{ end }}</title><main>{{ block "content" . }}{{ end }}</main>`)},
	"hello.html":  {Data: []byte(`{{ define "title" }}Hello{{ end }}{{ define "content" }}<p>{{ shout .Name }}</p>{{ end }}`)},
	"data.html":   {Data: []byte(`{{ define "content" }}{{ marshal . }}{{ end }}`)},
	"broken.html": {Data: []byte(`{{ define "content" }}{{ fail }}{{ end }}`)},
}

func newTestTemplates(t *testing.T) *Templates {
	t.Helper()
	tmpl, err := New(testFS, template.FuncMap{
		"shout": func(s string) string { return s + "!" },
		"fail":  func() (string, error) { return "", errors.New("boom") },
	})
	require.NoError(t, err)
	return tmpl
}

func TestTemplates_Render(t *testing.T) {
	tmpl := newTestTemplates(t)

	w := httptest.NewRecorder()
	require.NoError(t, tmpl.Render(w, http.StatusAccepted, "hello", map[string]string{"Name": "<Alice>"}))

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "<title>Hello</title><main><p>&lt;Alice&gt;!</p></main>", w.Body.String())
}

func TestTemplates_PagesAreIsolated(t *testing.T) {
	tmpl := newTestTemplates(t)

	w := httptest.NewRecorder()
	require.NoError(t, tmpl.Render(w, http.StatusOK, "data", map[string]int{"n": 1}))

	assert.Contains(t, w.Body.String(), "<title>SmartSchedule</title>")
	assert.True(t, tmpl.Has("hello"))
	assert.False(t, tmpl.Has("layout"))
}

func TestTemplates_Errors(t *testing.T) {
	tmpl := newTestTemplates(t)

	w := httptest.NewRecorder()
	err := tmpl.Render(w, http.StatusOK, "missing", nil)
	require.ErrorIs(t, err, ErrUnknownPage)

	w = httptest.NewRecorder()
	tmpl.Handler("broken", func(*http.Request) any { return map[string]any{} })(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "<main>")
}

func TestNew_MissingLayout(t *testing.T) {
	_, err := New(fstest.MapFS{"page.html": {Data: []byte("x")}}, nil)
	require.Error(t, err)
}
