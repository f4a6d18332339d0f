package logging

import (
	"embed"
	"fmt"
)

// ResultsTemplateName is the embedded template of the HTML results page.
const ResultsTemplateName = "results.html.tmpl"

//go:embed templates/*.html.tmpl
var templateFS embed.FS

// GetHTMLTemplate returns the content of the named embedded template
func GetHTMLTemplate(name string) (string, error) {
	content, err := templateFS.ReadFile("templates/" + name)
	if err != nil {
		return "", fmt.Errorf("template %s not found: %w", name, err)
	}
	return string(content), nil
}
