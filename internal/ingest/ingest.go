// Package ingest normalizes user-submitted files into textual or image
// evidence for routing and verification.
package ingest

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Evidence source kinds.
const (
	SourceTextPDF     = "text_pdf"
	SourceImage       = "image"
	SourcePDFNoText   = "pdf_no_text"
	SourceUnsupported = "unsupported"
)

var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
}

// IngestedDocument is the normalized view of a submitted file. It is
// created once per analysis request and read-only afterward.
type IngestedDocument struct {
	FilePath      string
	Source        string
	ExtractedText string
	QualityScore  float64
	Warnings      []string
	MediaPath     string
}

// Ingest classifies the file and extracts best-effort textual evidence.
// Unsupported formats and textless PDFs are values, not errors.
func Ingest(filePath string) (IngestedDocument, error) {
	if _, err := os.Stat(filePath); err != nil {
		return IngestedDocument{}, fmt.Errorf("document not found: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	if _, isImage := imageExtensions[ext]; isImage {
		return IngestedDocument{
			FilePath:     filePath,
			Source:       SourceImage,
			QualityScore: 0.7,
			MediaPath:    filePath,
		}, nil
	}

	if ext == ".pdf" {
		text, err := extractPDFText(filePath)
		if err != nil {
			return IngestedDocument{
				FilePath: filePath,
				Source:   SourcePDFNoText,
				Warnings: []string{
					"No se pudo extraer texto del PDF. Si es escaneado, conviértalo a imagen y vuelva a intentarlo.",
				},
			}, nil
		}
		if text != "" {
			return IngestedDocument{
				FilePath:      filePath,
				Source:        SourceTextPDF,
				ExtractedText: text,
				QualityScore:  0.95,
			}, nil
		}
		return IngestedDocument{
			FilePath: filePath,
			Source:   SourcePDFNoText,
			Warnings: []string{
				"El PDF no tiene texto digital extraíble. En esta versión no se soporta OCR de PDF escaneado.",
			},
		}, nil
	}

	return IngestedDocument{
		FilePath: filePath,
		Source:   SourceUnsupported,
		Warnings: []string{
			"Formato no soportado. Use PDF con texto o imagen JPG/JPEG/PNG.",
		},
	}, nil
}

func extractPDFText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	reader := bytes.NewReader(data)
	pdfReader, err := pdf.NewReader(reader, int64(len(data)))
	if err != nil {
		return "", err
	}
	plain, err := pdfReader.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}
