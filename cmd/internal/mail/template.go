package mail

import (
	"bytes"
	"embed"
	"html/template"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var activationTmpl = template.Must(template.ParseFS(templateFS, "templates/activation.html.tmpl"))

const activationSubject = "Activate your account"

func renderActivation(n Notice) ([]byte, error) {
	var buf bytes.Buffer
	if err := activationTmpl.Execute(&buf, n); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
