package parser

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"lecture-rag/internal/config"
	"lecture-rag/internal/models"
)

const (
	defaultChunkSize    = 1000 // characters
	defaultChunkOverlap = 200  // characters
	defaultPageNumber   = 1
)

var (
	ErrNoText            = errors.New("no extractable text")
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrFileTooLarge      = errors.New("file exceeds the upload size limit")
)

// section is one page, slide or sheet of extracted text.
type section struct {
	Page int
	Text string
}

type extractFunc func(filePath string) ([]section, error)

var extractors = map[string]extractFunc{
	".pdf":  extractPDF,
	".docx": extractDOCX,
	".pptx": extractPPTX,
	".xlsx": extractXLSX,
	".ods":  extractODS,
	".txt":  extractText,
}

// SupportedExtensions lists the accepted upload extensions.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(extractors))
	for ext := range extractors {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// ValidateUpload checks the extension and size of an upload before it is parsed.
func ValidateUpload(fileName string, size int64, cfg *config.RAGConfig) error {
	ext := strings.ToLower(filepath.Ext(fileName))
	if _, ok := extractors[ext]; !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if cfg != nil && cfg.MaxFileSizeMB > 0 && size > cfg.MaxFileSizeBytes() {
		return fmt.Errorf("%w: %d bytes > %d MB", ErrFileTooLarge, size, cfg.MaxFileSizeMB)
	}
	return nil
}

// ParseFile extracts the text of filePath and splits it into overlapping chunks.
// sourceName is recorded as the chunk source; it defaults to the file's base name.
func ParseFile(filePath, sourceName string, cfg *config.RAGConfig) ([]models.Chunk, error) {
	size, overlap := defaultChunkSize, defaultChunkOverlap
	if cfg != nil && cfg.ChunkSize > 0 {
		size, overlap = cfg.ChunkSize, cfg.ChunkOverlap
	}
	if sourceName == "" {
		sourceName = filepath.Base(filePath)
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	extract, ok := extractors[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	sections, err := extract(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to extract %s: %w", sourceName, err)
	}

	text, starts := joinSections(sections, ext == ".pdf")
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w in %s", ErrNoText, sourceName)
	}

	spans := splitText(text, size, overlap)
	chunks := make([]models.Chunk, len(spans))
	for i, sp := range spans {
		chunks[i] = models.Chunk{
			Content:    sp.Text,
			Source:     sourceName,
			PageNumber: pageAt(starts, sp.Start),
			ChunkID:    i,
		}
	}
	log.Debug().Str("source", sourceName).Int("sections", len(sections)).Int("chunks", len(chunks)).Msg("Parsed file")
	return chunks, nil
}

type pageStart struct {
	offset int // rune offset into the joined text
	page   int
}

// joinSections concatenates sections, marking each PDF page with a banner, and remembers where each page starts.
func joinSections(sections []section, banner bool) (string, []pageStart) {
	var sb strings.Builder
	var starts []pageStart
	offset := 0
	for _, s := range sections {
		if strings.TrimSpace(s.Text) == "" {
			continue
		}
		starts = append(starts, pageStart{offset: offset, page: s.Page})
		var part string
		if banner {
			part = fmt.Sprintf(models.PageBannerFormat, s.Page) + s.Text
		} else {
			part = s.Text + "\n\n"
		}
		sb.WriteString(part)
		offset += len([]rune(part))
	}
	return sb.String(), starts
}

func pageAt(starts []pageStart, offset int) int {
	page := defaultPageNumber
	for _, s := range starts {
		if s.offset > offset {
			break
		}
		page = s.page
	}
	return page
}

type span struct {
	Text  string
	Start int
}

// splitText cuts content into windows of at most maxChars runes that overlap by overlapChars,
// preferring to break on whitespace or a full stop near the end of a window.
func splitText(content string, maxChars, overlapChars int) []span {
	if maxChars <= 0 {
		return nil
	}
	if overlapChars < 0 {
		overlapChars = 0
	}
	if overlapChars >= maxChars {
		overlapChars = maxChars / 2
	}
	runes := []rune(content)
	n := len(runes)

	var spans []span
	start := 0
	for start < n {
		end := min(start+maxChars, n)
		if end < n {
			lookBack := min(maxChars/10, end-start)
			for i := end - 1; i >= end-lookBack && i > start; i-- {
				if r := runes[i]; r == ' ' || r == '\n' || r == '.' {
					end = i + 1
					break
				}
			}
		}
		if text := strings.TrimSpace(string(runes[start:end])); text != "" {
			spans = append(spans, span{Text: text, Start: start})
		}
		if end >= n {
			break
		}
		start = max(end-overlapChars, start+1)
	}
	return spans
}
