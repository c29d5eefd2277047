package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

const docxBody = "word/document.xml"

func extractDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx container: %w", err)
	}
	var body *zip.File
	for _, f := range zr.File {
		if f.Name == docxBody {
			body = f
			break
		}
	}
	if body == nil {
		return "", fmt.Errorf("docx has no %s", docxBody)
	}
	rc, err := body.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", docxBody, err)
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", docxBody, err)
	}
	return docxParagraphs(raw)
}

// docxParagraphs joins <w:t> runs, one line per <w:p> paragraph.
func docxParagraphs(raw []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	var (
		out  strings.Builder
		para strings.Builder
	)
	flush := func() {
		line := strings.TrimSpace(para.String())
		para.Reset()
		if line == "" {
			return
		}
		if out.Len() > 0 {
			out.WriteString("\n")
		}
		out.WriteString(line)
	}
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse %s: %w", docxBody, err)
		}
		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "t":
				var v string
				if err := dec.DecodeElement(&v, &el); err != nil {
					return "", fmt.Errorf("parse %s: %w", docxBody, err)
				}
				para.WriteString(v)
			case "tab":
				para.WriteString("\t")
			case "br":
				para.WriteString(" ")
			}
		case xml.EndElement:
			if el.Name.Local == "p" {
				flush()
			}
		}
	}
	flush()
	return out.String(), nil
}
