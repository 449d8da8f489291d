package documents

import (
	"fmt"
	"os"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// Page is a unit of extracted document text. Page indices are 0-based.
// Non-paginated formats produce a single page with index 0.
type Page struct {
	Index int
	Text  string
}

// Load extracts text from a file according to its type. PDFs are split
// per page; markdown and any other text format load as one page.
func Load(filePath, fileType string) ([]Page, error) {
	switch strings.ToLower(fileType) {
	case "pdf":
		return LoadPDF(filePath)
	default:
		return LoadText(filePath)
	}
}

// LoadPDF extracts per-page text from a PDF file. Pages with no
// extractable text are omitted but retain their original indices.
func LoadPDF(filePath string) ([]Page, error) {
	doc, err := fitz.New(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	var pages []Page
	for i := 0; i < doc.NumPage(); i++ {
		text, err := doc.Text(i)
		if err != nil {
			return nil, fmt.Errorf("failed to extract page %d: %w", i, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, Page{Index: i, Text: text})
	}
	return pages, nil
}

// LoadText reads a whole text file as a single page with index 0.
func LoadText(filePath string) ([]Page, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, nil
	}
	return []Page{{Index: 0, Text: string(data)}}, nil
}
