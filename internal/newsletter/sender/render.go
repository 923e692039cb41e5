package sender

import (
	"bytes"
	"html/template"
	"strings"
)

var newsletterTmpl = template.Must(template.New("newsletter").Parse(`<!DOCTYPE html>
<html><body style="font-family: sans-serif; max-width: 640px; margin: 0 auto;">
{{- if .Type}}<p style="color: #666; text-transform: uppercase; font-size: 12px;">{{.Type}}</p>{{end}}
<h1>{{.Title}}</h1>
{{range .Paragraphs}}<p>{{.}}</p>
{{end -}}
{{- if .Name}}<p style="color: #999; font-size: 12px;">Sent to {{.Name}}</p>{{end}}
</body></html>
`))

// RenderNewsletter produces the HTML body for one recipient. Content is
// escaped and split into paragraphs on blank lines.
func RenderNewsletter(title, content, kind, recipientName string) (string, error) {
	var paragraphs []string
	for _, p := range strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	var buf bytes.Buffer
	err := newsletterTmpl.Execute(&buf, struct {
		Title, Type, Name string
		Paragraphs        []string
	}{Title: title, Type: kind, Name: recipientName, Paragraphs: paragraphs})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
