package views

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
)

//go:embed *.html
var templatesFS embed.FS

const layoutFile = "layout.html"

var funcs = template.FuncMap{
	"join": strings.Join,
}

type Engine struct {
	templates map[string]*template.Template
}

func New() (*Engine, error) {
	e := &Engine{
		templates: make(map[string]*template.Template),
	}

	layoutTmpl, err := template.New(layoutFile).Funcs(funcs).ParseFS(templatesFS, layoutFile)
	if err != nil {
		return nil, fmt.Errorf("failed to parse layout: %w", err)
	}

	entries, err := fs.ReadDir(templatesFS, ".")
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == layoutFile {
			continue
		}

		name := entry.Name()
		baseName := strings.TrimSuffix(name, filepath.Ext(name))

		// Each page gets its own copy of the layout
		tmpl, err := layoutTmpl.Clone()
		if err != nil {
			return nil, err
		}

		if _, err := tmpl.ParseFS(templatesFS, name); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}

		e.templates[baseName] = tmpl
	}

	return e, nil
}

// Render executes the named page inside the layout
func (e *Engine) Render(w io.Writer, name string, data any) error {
	tmpl, ok := e.templates[name]
	if !ok {
		return fmt.Errorf("template %q not found", name)
	}
	return tmpl.Execute(w, data)
}
