package docx

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"

	"sdoc/document"
)

const customPropsFmtid = "{D5CDD505-2E9C-101B-9397-08002B2CF9AE}"

const w3cdtf = "2006-01-02T15:04:05Z"

// buildCoreProps regenerates docProps/core.xml from the document descriptor.
// Editor-owned fields of the template (cp:lastModifiedBy, cp:revision) carry
// over, everything else is authored fresh.
func buildCoreProps(tmpl []byte, info *document.Info) ([]byte, error) {
	lastModifiedBy, revision := "", "1"
	if len(tmpl) > 0 {
		src := etree.NewDocument()
		if err := src.ReadFromBytes(tmpl); err != nil {
			return nil, fmt.Errorf("unable to parse template core properties: %w", err)
		}
		if root := src.Root(); root != nil {
			for _, e := range root.ChildElements() {
				switch e.Tag {
				case "lastModifiedBy":
					lastModifiedBy = e.Text()
				case "revision":
					if strings.TrimSpace(e.Text()) != "" {
						revision = e.Text()
					}
				}
			}
		}
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8" standalone="yes"`)

	root := doc.CreateElement("cp:coreProperties")
	root.CreateAttr("xmlns:cp", "http://schemas.openxmlformats.org/package/2006/metadata/core-properties")
	root.CreateAttr("xmlns:dc", "http://purl.org/dc/elements/1.1/")
	root.CreateAttr("xmlns:dcterms", "http://purl.org/dc/terms/")
	root.CreateAttr("xmlns:dcmitype", "http://purl.org/dc/dcmitype/")
	root.CreateAttr("xmlns:xsi", "http://www.w3.org/2001/XMLSchema-instance")

	set := func(tag, value string) {
		root.CreateElement(tag).SetText(value)
	}
	set("dc:title", info.Title)
	set("dc:subject", info.Subtitle)
	set("dc:creator", info.Owner.Name)
	set("cp:keywords", strings.Join(info.Keywords(), ", "))
	set("dc:description", info.Description)
	set("cp:lastModifiedBy", lastModifiedBy)
	set("cp:revision", revision)
	setStamp(root, "dcterms:created", info.CreatedTime())
	setStamp(root, "dcterms:modified", info.ModifiedTime())

	return doc.WriteToBytes()
}

func setStamp(root *etree.Element, tag string, t time.Time) {
	e := root.CreateElement(tag)
	e.CreateAttr("xsi:type", "dcterms:W3CDTF")
	e.SetText(t.UTC().Format(w3cdtf))
}

// ownedProps are custom property names this tool authors. Template
// properties under these names are discarded, anything else survives.
var ownedProps = []string{
	"System ID",
	"Document ID",
	"Document Type",
	"Standard",
	"Version",
	"Owner",
	"Owner Email",
	"Approver",
	"Approver Email",
}

// buildCustomProps regenerates docProps/custom.xml: descriptor identity
// fields first, then the template's foreign properties verbatim. Property
// ids are resequenced from 2 so merged sets stay valid.
func buildCustomProps(tmpl []byte, info *document.Info) ([]byte, error) {
	owned := make(map[string]bool, len(ownedProps))
	for _, n := range ownedProps {
		owned[n] = true
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8" standalone="yes"`)

	root := doc.CreateElement("Properties")
	root.CreateAttr("xmlns", "http://schemas.openxmlformats.org/officeDocument/2006/custom-properties")
	root.CreateAttr("xmlns:vt", "http://schemas.openxmlformats.org/officeDocument/2006/docPropsVTypes")

	pid := 2
	add := func(name, value string) {
		if value == "" {
			return
		}
		p := root.CreateElement("property")
		p.CreateAttr("fmtid", customPropsFmtid)
		p.CreateAttr("pid", strconv.Itoa(pid))
		pid++
		p.CreateAttr("name", name)
		p.CreateElement("vt:lpwstr").SetText(value)
	}
	add("System ID", info.SystemID)
	add("Document ID", info.DocumentID)
	add("Document Type", info.Type)
	add("Standard", info.Standard)
	add("Version", info.Version)
	add("Owner", info.Owner.Name)
	add("Owner Email", info.Owner.Email)
	add("Approver", info.Approver.Name)
	add("Approver Email", info.Approver.Email)

	if len(tmpl) > 0 {
		src := etree.NewDocument()
		if err := src.ReadFromBytes(tmpl); err != nil {
			return nil, fmt.Errorf("unable to parse template custom properties: %w", err)
		}
		if srcRoot := src.Root(); srcRoot != nil {
			for _, e := range srcRoot.ChildElements() {
				if e.Tag != "property" {
					continue
				}
				name := e.SelectAttrValue("name", "")
				if name == "" || owned[name] {
					continue
				}
				c := e.Copy()
				if a := c.SelectAttr("pid"); a != nil {
					a.Value = strconv.Itoa(pid)
				} else {
					c.CreateAttr("pid", strconv.Itoa(pid))
				}
				pid++
				root.AddChild(c)
			}
		}
	}

	return doc.WriteToBytes()
}
