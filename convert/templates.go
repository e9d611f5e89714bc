package convert

import (
	"bytes"
	"fmt"
	"text/template"

	sprig "github.com/go-task/slim-sprig/v3"
	"github.com/gosimple/slug"

	"sdoc/config"
	"sdoc/document"
)

// Values holds variables we make available for template expansion.
type Values struct {
	Context    string
	SystemID   string
	DocumentID string
	Title      string
	Subtitle   string
	Type       string
	Standard   string
	Version    string
	Owner      document.Person
	Approver   document.Person
	Date       string
}

func expandTemplate(info *document.Info, name config.TemplateFieldName, field string) (string, error) {
	funcMap := sprig.FuncMap()
	funcMap["slugify"] = slug.Make

	tmpl, err := template.New(string(name)).Funcs(funcMap).Parse(field)
	if err != nil {
		return "", fmt.Errorf("unable to parse template field %s: %w", name, err)
	}

	values := Values{
		Context:    string(name),
		SystemID:   info.SystemID,
		DocumentID: info.DocumentID,
		Title:      info.Title,
		Subtitle:   info.Subtitle,
		Type:       info.Type,
		Standard:   info.Standard,
		Version:    info.Version,
		Owner:      info.Owner,
		Approver:   info.Approver,
		Date:       info.ModifiedTime().Format("2006-01-02"),
	}

	buf := new(bytes.Buffer)
	if err := tmpl.Execute(buf, values); err != nil {
		return "", err
	}
	return buf.String(), nil
}
