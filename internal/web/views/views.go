package views

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

//go:embed *.html
var templatesFS embed.FS

// standalone pages render without the layout
var standalone = map[string]bool{"login": true}

type Engine struct {
	templates map[string]*template.Template
}

// Funcs returns the helpers available to every template
func Funcs() template.FuncMap {
	return template.FuncMap{
		"bytes": func(n int64) string { return humanize.IBytes(uint64(n)) },
		"comma": func(n int) string { return humanize.Comma(int64(n)) },
		"ago":   humanize.Time,
		"date":  func(t time.Time) string { return t.Format("2006-01-02 15:04") },
		"join":  strings.Join,
	}
}

func New() (*Engine, error) {
	e := &Engine{
		templates: make(map[string]*template.Template),
	}

	layoutTmpl, err := template.New("layout.html").Funcs(Funcs()).ParseFS(templatesFS, "layout.html")
	if err != nil {
		return nil, err
	}

	entries, err := fs.ReadDir(templatesFS, ".")
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == "layout.html" {
			continue
		}

		name := entry.Name()
		baseName := name[:len(name)-len(filepath.Ext(name))]

		var tmpl *template.Template
		if standalone[baseName] {
			tmpl, err = template.New(name).Funcs(Funcs()).ParseFS(templatesFS, name)
		} else {
			tmpl, err = layoutTmpl.Clone()
			if err == nil {
				_, err = tmpl.ParseFS(templatesFS, name)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}

		e.templates[baseName] = tmpl
	}

	return e, nil
}

// Render executes the named page
func (e *Engine) Render(w io.Writer, name string, data any) error {
	tmpl, ok := e.templates[name]
	if !ok {
		return fmt.Errorf("template %q not found", name)
	}
	return tmpl.Execute(w, data)
}
