package api

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/artur/tubegrab/internal/library"
)

//go:embed templates/*.html
var templateFS embed.FS

type indexData struct {
	Folders []string
}

type videosData struct {
	Nodes []*library.Node
}

type pages struct {
	templates map[string]*template.Template
}

func loadPages() (*pages, error) {
	p := &pages{templates: make(map[string]*template.Template)}
	for _, name := range []string{"index.html", "videos.html"} {
		tmpl, err := template.New(name).ParseFS(templateFS, "templates/layout.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		p.templates[name] = tmpl
	}
	return p, nil
}

// render writes the page, or a 500 if the template fails.
func (p *pages) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := p.templates[name]
	if !ok {
		http.Error(w, "Unknown page", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}
