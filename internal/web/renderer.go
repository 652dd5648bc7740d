package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"

	"github.com/labstack/echo/v4"
)

//go:embed templates/*.html
var templateFS embed.FS

// TemplateRenderer is a html/template renderer for Echo. Each page is parsed
// together with layout.html.
type TemplateRenderer struct {
	Templates map[string]*template.Template
}

var funcs = template.FuncMap{
	"value": func(v *float64) string {
		if v == nil {
			return "-"
		}
		return fmt.Sprintf("%g", *v)
	},
}

// NewRenderer parses the embedded pages.
func NewRenderer() (*TemplateRenderer, error) {
	pages := []string{"dashboard.html"}
	r := &TemplateRenderer{Templates: make(map[string]*template.Template, len(pages))}
	for _, page := range pages {
		tmpl, err := template.New(page).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+page)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", page, err)
		}
		r.Templates[page] = tmpl
	}
	return r, nil
}

// Render renders a template document
func (t *TemplateRenderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	tmpl, ok := t.Templates[name]
	if !ok {
		return fmt.Errorf("template %q not found", name)
	}
	return tmpl.ExecuteTemplate(w, "layout.html", data)
}
