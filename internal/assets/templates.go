package assets

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"maps"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// LayoutName is the template every page is rendered through.
const LayoutName = "layout.html"

var ErrUnknownPage = errors.New("unknown page")

// Templates holds one template set per page, each cloned from the layout.
type Templates struct {
	mu    sync.RWMutex
	pages map[string]*template.Template
}

// New parses layout.html and every other *.html file in fsys. Each page is
// parsed into its own clone of the layout so pages can redefine blocks.
func New(fsys fs.FS, customFuncs template.FuncMap) (*Templates, error) {
	funcs := template.FuncMap{
		"marshal": marshal,
	}

	// Merge custom functions
	maps.Copy(funcs, customFuncs)

	layout, err := template.New(LayoutName).Funcs(funcs).ParseFS(fsys, LayoutName)
	if err != nil {
		return nil, fmt.Errorf("failed to parse layout: %w", err)
	}

	files, err := fs.Glob(fsys, "*.html")
	if err != nil {
		return nil, err
	}

	t := &Templates{pages: make(map[string]*template.Template, len(files))}
	for _, file := range files {
		if file == LayoutName {
			continue
		}

		clone, err := layout.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := clone.ParseFS(fsys, file); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", file, err)
		}

		t.pages[strings.TrimSuffix(path.Base(file), ".html")] = clone
	}

	log.Debug().Int("pages", len(t.pages)).Msg("templates loaded")

	return t, nil
}

// Has reports whether page was loaded.
func (t *Templates) Has(page string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.pages[page]
	return ok
}

// Render executes page into a buffer before writing, so a template error
// never leaves a half written response.
func (t *Templates) Render(w http.ResponseWriter, status int, page string, data any) error {
	t.mu.RLock()
	tmpl, ok := t.pages[page]
	t.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPage, page)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, LayoutName, data); err != nil {
		return fmt.Errorf("failed to render %s: %w", page, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// Handler returns an http.HandlerFunc rendering page with the data built by dataFn.
func (t *Templates) Handler(page string, dataFn func(r *http.Request) any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var data any
		if dataFn != nil {
			data = dataFn(r)
		}
		if err := t.Render(w, http.StatusOK, page, data); err != nil {
			log.Error().Err(err).Str("page", page).Msg("failed to render template")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
	}
}

func marshal(value any) (string, error) {
	buf := new(bytes.Buffer)

	if err := json.NewEncoder(buf).Encode(value); err != nil {
		return "", errors.New("context can only be json serializable")
	}

	return buf.String(), nil
}
