package documents

import (
	"context"
	"fmt"
	"log"

	"github.com/docrag/api/internal/vectorstore"
)

// VectorWriter is the write path of the vector store.
type VectorWriter interface {
	AddTexts(ctx context.Context, texts []string, metas []vectorstore.ChunkMeta) error
}

// Processor is the document ingestion pipeline: parse, split, tag each
// chunk with its source metadata, and write the batch to the vector store.
type Processor struct {
	store    VectorWriter
	splitter *Splitter
}

// NewProcessor creates a new ingestion processor.
func NewProcessor(store VectorWriter, chunkSize, chunkOverlap int) *Processor {
	return &Processor{
		store:    store,
		splitter: NewSplitter(chunkSize, chunkOverlap),
	}
}

// Ingest loads the file at filePath, splits its text into chunks, and
// indexes them under docID. It returns the page count and chunk count.
// Writes already sent to the vector store are not rolled back on error.
func (p *Processor) Ingest(ctx context.Context, filePath, fileName, docID, fileType string) (int, int, error) {
	pages, err := Load(filePath, fileType)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to parse document: %w", err)
	}

	var texts []string
	var metas []vectorstore.ChunkMeta
	chunkIndex := 0
	maxPage := -1
	for _, page := range pages {
		for _, chunk := range p.splitter.Split(page.Text) {
			texts = append(texts, chunk)
			metas = append(metas, vectorstore.ChunkMeta{
				DocID:      docID,
				Page:       page.Index,
				ChunkIndex: chunkIndex,
				Source:     fileName,
				FileType:   fileType,
			})
			chunkIndex++
		}
		if page.Index > maxPage {
			maxPage = page.Index
		}
	}

	if len(texts) > 0 {
		log.Printf("adding %d chunks for %s doc %s", len(texts), fileType, docID)
		if err := p.store.AddTexts(ctx, texts, metas); err != nil {
			return 0, 0, fmt.Errorf("failed to index chunks: %w", err)
		}
	}

	// PDFs report 1 + the highest page index that produced chunks;
	// single-page formats always report 1.
	pageCount := 1
	if fileType == "pdf" {
		pageCount = maxPage + 1
	}
	return pageCount, len(texts), nil
}
