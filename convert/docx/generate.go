// Package docx serializes the unified document into a Word container,
// preserving the visual identity of an existing .docx template. The template
// is copied part by part, a handful of parts are transformed in place and
// the generated content is spliced into the body.
package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	fixzip "github.com/hidez8891/zip"
	"go.uber.org/zap"

	"sdoc/archive"
	"sdoc/config"
	"sdoc/content"
	"sdoc/state"
	"sdoc/utils/images"
)

const (
	partDocument     = "word/document.xml"
	partDocumentRels = "word/_rels/document.xml.rels"
	partPackageRels  = "_rels/.rels"
	partContentTypes = "[Content_Types].xml"
	partStyles       = "word/styles.xml"
	partCoreProps    = "docProps/core.xml"
	partCustomProps  = "docProps/custom.xml"
	mediaDir         = "word/media/"
)

// relIDBase keeps generated relationship ids clear of anything a reasonable
// template already uses.
const relIDBase = 100

type relIDAllocator struct {
	n int
}

func (a *relIDAllocator) next() string {
	id := fmt.Sprintf("rId%d", a.n)
	a.n++
	return id
}

type idAllocator struct {
	n int
}

func (a *idAllocator) next() int {
	a.n++
	return a.n
}

// imageRef binds a source image reference to its embedded representation.
type imageRef struct {
	relID     string
	mediaName string
	prep      *images.Prepared
}

// Generate writes the output .docx. Content goes to a temporary file first,
// the real output path is only touched after the archive is complete.
func Generate(ctx context.Context, c *content.Content, templatePath, outputPath string, cfg *config.DocumentConfig, log *zap.Logger) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	env := state.EnvFromContext(ctx)

	log.Info("Generating DOCX", zap.String("template", templatePath), zap.String("output", outputPath))

	imgs, err := prepareImages(c, cfg, log)
	if err != nil {
		return err
	}

	body := buildBody(c, imgs, &idAllocator{n: 1000}, log)

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("unable to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(outputPath), ".docx-*")
	if err != nil {
		return fmt.Errorf("unable to create temporary output file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	defer tmp.Close()

	zw := zip.NewWriter(tmp)
	defer zw.Close()

	if err := transformTemplate(zw, c, templatePath, body, imgs, log); err != nil {
		return err
	}

	// make sure buffers are flushed before continuing
	if err := zw.Close(); err != nil {
		return fmt.Errorf("unable to close output archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("unable to finalize temporary file: %w", err)
	}

	// output path only ever sees a complete archive
	finalName := tmpName
	if cfg.FixZip {
		fixed, err := os.CreateTemp(filepath.Dir(outputPath), ".docx-*")
		if err != nil {
			return fmt.Errorf("unable to create temporary output file: %w", err)
		}
		fixedName := fixed.Name()
		fixed.Close()
		defer os.Remove(fixedName)

		if err := copyZipWithoutDataDescriptors(tmpName, fixedName); err != nil {
			return err
		}
		finalName = fixedName
	}
	if err := os.Rename(finalName, outputPath); err != nil {
		return fmt.Errorf("unable to finalize output file (%s): %w", outputPath, err)
	}

	if env.Rpt != nil {
		if err := env.Rpt.StoreCopy("result"+filepath.Ext(outputPath), outputPath); err != nil {
			log.Warn("Unable to store result in report", zap.Error(err))
		}
	}
	return nil
}

// prepareImages loads and prepares every distinct referenced image, assigning
// relationship ids and media part names from a threaded counter.
func prepareImages(c *content.Content, cfg *config.DocumentConfig, log *zap.Logger) (map[string]*imageRef, error) {
	rels := &relIDAllocator{n: relIDBase}

	imgs := make(map[string]*imageRef)
	for _, img := range c.Images() {
		if !img.Exists {
			continue
		}
		if _, ok := imgs[img.Path]; ok {
			continue
		}

		data, err := os.ReadFile(img.AbsPath)
		if err != nil {
			return nil, fmt.Errorf("unable to read image %s: %w", img.Path, err)
		}
		prep, err := images.Prepare(img.Path, data, &cfg.Images, log)
		if err != nil {
			return nil, err
		}

		relID := rels.next()
		imgs[img.Path] = &imageRef{
			relID:     relID,
			mediaName: fmt.Sprintf("image%s.%s", strings.TrimPrefix(relID, "rId"), prep.Ext),
			prep:      prep,
		}
	}
	return imgs, nil
}

// transformTemplate walks the template archive copying parts into the output,
// transforming the handful of parts that carry generated content. Core and
// custom properties are captured during the scan and regenerated at the end,
// after that every referenced image lands under word/media/.
func transformTemplate(zw *zip.Writer, c *content.Content, templatePath, body string, imgs map[string]*imageRef, log *zap.Logger) error {
	var coreProps, customProps []byte
	var sawDocument, sawContentTypes bool
	written := make(map[string]bool)

	err := archive.Walk(templatePath, "", func(_ string, f *zip.File) error {
		name := f.FileHeader.Name
		if written[name] {
			log.Warn("Skipping duplicate template part", zap.String("part", name))
			return nil
		}

		data, err := readPart(f)
		if err != nil {
			return fmt.Errorf("unable to read template part %s: %w", name, err)
		}

		switch name {
		case partDocument:
			sawDocument = true
			if data, err = spliceBody(data, body); err != nil {
				return err
			}
		case partDocumentRels:
			if data, err = spliceImageRels(data, imgs); err != nil {
				return err
			}
		case partPackageRels:
			data = ensurePackageRels(data)
		case partContentTypes:
			sawContentTypes = true
			if data, err = ensureContentTypes(data, imgs); err != nil {
				return err
			}
		case partStyles:
			if data, err = ensureCaptionStyle(data); err != nil {
				return err
			}
		case partCoreProps:
			coreProps = data
			return nil // regenerated after the scan
		case partCustomProps:
			customProps = data
			return nil
		}

		written[name] = true
		return writePart(zw, name, data)
	})
	if err != nil {
		return fmt.Errorf("unable to process template %s: %w", templatePath, err)
	}
	if !sawDocument {
		return fmt.Errorf("template %s is not a Word document: no %s part", templatePath, partDocument)
	}
	if !sawContentTypes {
		return fmt.Errorf("template %s is not a Word document: no %s part", templatePath, partContentTypes)
	}

	core, err := buildCoreProps(coreProps, c.Info)
	if err != nil {
		return fmt.Errorf("unable to build core properties: %w", err)
	}
	if err := writePart(zw, partCoreProps, core); err != nil {
		return err
	}

	custom, err := buildCustomProps(customProps, c.Info)
	if err != nil {
		return fmt.Errorf("unable to build custom properties: %w", err)
	}
	if err := writePart(zw, partCustomProps, custom); err != nil {
		return err
	}

	// deterministic media order, write each part exactly once
	paths := make([]string, 0, len(imgs))
	for p := range imgs {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		ref := imgs[p]
		name := mediaDir + ref.mediaName
		if written[name] {
			continue
		}
		written[name] = true
		if err := writePart(zw, name, ref.prep.Data); err != nil {
			return fmt.Errorf("unable to write image %s: %w", p, err)
		}
	}
	return nil
}

func readPart(f *zip.File) ([]byte, error) {
	r, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func writePart(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// spliceBody inserts generated content immediately before the body close
// marker. A template without the marker cannot be patched, no output is
// produced.
func spliceBody(doc []byte, body string) ([]byte, error) {
	const marker = "</w:body>"
	i := bytes.LastIndex(doc, []byte(marker))
	if i < 0 {
		return nil, fmt.Errorf("template document.xml has no %s marker", marker)
	}
	out := make([]byte, 0, len(doc)+len(body))
	out = append(out, doc[:i]...)
	out = append(out, body...)
	out = append(out, doc[i:]...)
	return out, nil
}

func spliceImageRels(rels []byte, imgs map[string]*imageRef) ([]byte, error) {
	if len(imgs) == 0 {
		return rels, nil
	}
	const marker = "</Relationships>"
	i := bytes.LastIndex(rels, []byte(marker))
	if i < 0 {
		return nil, fmt.Errorf("template document.xml.rels has no %s marker", marker)
	}

	ids := make([]string, 0, len(imgs))
	byID := make(map[string]*imageRef, len(imgs))
	for _, ref := range imgs {
		ids = append(ids, ref.relID)
		byID[ref.relID] = ref
	}
	sort.Strings(ids)

	var sb strings.Builder
	for _, id := range ids {
		if bytes.Contains(rels, []byte(`Id="`+id+`"`)) {
			continue
		}
		sb.WriteString(fmt.Sprintf(
			`<Relationship Id="%s" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="media/%s"/>`,
			id, byID[id].mediaName))
	}

	out := make([]byte, 0, len(rels)+sb.Len())
	out = append(out, rels[:i]...)
	out = append(out, sb.String()...)
	out = append(out, rels[i:]...)
	return out, nil
}

// ensurePackageRels makes sure the package points at both docProps parts so
// regenerated properties are actually visible to Word.
func ensurePackageRels(rels []byte) []byte {
	const marker = "</Relationships>"
	i := bytes.LastIndex(rels, []byte(marker))
	if i < 0 {
		return rels
	}

	var sb strings.Builder
	if !bytes.Contains(rels, []byte(`Target="docProps/core.xml"`)) {
		sb.WriteString(`<Relationship Id="rIdCoreProperties" Type="http://schemas.openxmlformats.org/package/2006/relationships/metadata/core-properties" Target="docProps/core.xml"/>`)
	}
	if !bytes.Contains(rels, []byte(`Target="docProps/custom.xml"`)) {
		sb.WriteString(`<Relationship Id="rIdCustomProperties" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/custom-properties" Target="docProps/custom.xml"/>`)
	}
	if sb.Len() == 0 {
		return rels
	}

	out := make([]byte, 0, len(rels)+sb.Len())
	out = append(out, rels[:i]...)
	out = append(out, sb.String()...)
	out = append(out, rels[i:]...)
	return out
}

func ensureContentTypes(data []byte, imgs map[string]*imageRef) ([]byte, error) {
	const marker = "</Types>"
	i := bytes.LastIndex(data, []byte(marker))
	if i < 0 {
		return nil, fmt.Errorf("template content types part has no %s marker", marker)
	}

	exts := make(map[string]string)
	for _, ref := range imgs {
		mime := ref.prep.Mime
		if mime == "" {
			mime = "image/" + ref.prep.Ext
		}
		exts[ref.prep.Ext] = mime
	}
	names := make([]string, 0, len(exts))
	for e := range exts {
		names = append(names, e)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, e := range names {
		if bytes.Contains(data, []byte(`Extension="`+e+`"`)) {
			continue
		}
		sb.WriteString(fmt.Sprintf(`<Default Extension="%s" ContentType="%s"/>`, e, exts[e]))
	}
	if !bytes.Contains(data, []byte(`PartName="/`+partCoreProps+`"`)) {
		sb.WriteString(`<Override PartName="/docProps/core.xml" ContentType="application/vnd.openxmlformats-package.core-properties+xml"/>`)
	}
	if !bytes.Contains(data, []byte(`PartName="/`+partCustomProps+`"`)) {
		sb.WriteString(`<Override PartName="/docProps/custom.xml" ContentType="application/vnd.openxmlformats-officedocument.custom-properties+xml"/>`)
	}
	if sb.Len() == 0 {
		return data, nil
	}

	out := make([]byte, 0, len(data)+sb.Len())
	out = append(out, data[:i]...)
	out = append(out, sb.String()...)
	out = append(out, data[i:]...)
	return out, nil
}

// ensureCaptionStyle adds a Caption paragraph style when the template has
// none, detected by style id so a customized template style wins.
func ensureCaptionStyle(data []byte) ([]byte, error) {
	if bytes.Contains(data, []byte(`w:styleId="Caption"`)) {
		return data, nil
	}
	const marker = "</w:styles>"
	i := bytes.LastIndex(data, []byte(marker))
	if i < 0 {
		return nil, fmt.Errorf("template styles.xml has no %s marker", marker)
	}

	const style = `<w:style w:type="paragraph" w:styleId="Caption">` +
		`<w:name w:val="caption"/><w:basedOn w:val="Normal"/><w:next w:val="Normal"/>` +
		`<w:rPr><w:i/><w:iCs/><w:sz w:val="18"/><w:szCs w:val="18"/></w:rPr></w:style>`

	out := make([]byte, 0, len(data)+len(style))
	out = append(out, data[:i]...)
	out = append(out, style...)
	out = append(out, data[i:]...)
	return out, nil
}

func copyZipWithoutDataDescriptors(from, to string) error {
	out, err := os.Create(to)
	if err != nil {
		return fmt.Errorf("unable to create target file (%s): %w", to, err)
	}
	defer out.Close()

	r, err := fixzip.OpenReader(from)
	if err != nil {
		return fmt.Errorf("unable to read archive file (%s): %w", from, err)
	}
	defer r.Close()

	w := fixzip.NewWriter(out)
	defer w.Close()

	for _, file := range r.File {
		// unset data descriptor flag.
		file.Flags &= ^fixzip.FlagDataDescriptor

		// copy zip entry
		if err := w.CopyFile(file); err != nil {
			return fmt.Errorf("unable to write target file (%s): %w", to, err)
		}
	}
	return nil
}
