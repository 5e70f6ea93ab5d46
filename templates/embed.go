package templates

import (
	"embed"
	"fmt"
	"html/template"
)

//go:embed *.html
var FS embed.FS

// Setup forms rendered by the server and the drivers.
var required = []string{"setup.html", "amh_setup.html"}

// LoadTemplates loads all templates from the embedded filesystem
func LoadTemplates() (*template.Template, error) {
	tmpl, err := template.ParseFS(FS, "*.html")
	if err != nil {
		return nil, err
	}
	for _, name := range required {
		if tmpl.Lookup(name) == nil {
			return nil, fmt.Errorf("template %s not found", name)
		}
	}
	return tmpl, nil
}
