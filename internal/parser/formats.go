package parser

import (
	"archive/zip"
	"fmt"
	"html"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
)

var (
	docxTextRe   = regexp.MustCompile(`<w:t(?:\s[^>]*)?>([^<]*)</w:t>`)
	docxParaRe   = regexp.MustCompile(`</w:p>`)
	pptxTextRe   = regexp.MustCompile(`<a:t(?:\s[^>]*)?>([^<]*)</a:t>`)
	pptxSlideRe  = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
)

func extractPDF(filePath string) ([]section, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, err
	}

	var sections []section
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			log.Warn().Err(err).Int("page", i).Str("file", filePath).Msg("Skipping unreadable page")
			continue
		}
		sections = append(sections, section{Page: i, Text: text})
	}
	return sections, nil
}

func extractDOCX(filePath string) ([]section, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	// DOCX has no page numbers
	return []section{{Page: defaultPageNumber, Text: xmlText(r.Editable().GetContent(), docxTextRe, docxParaRe)}}, nil
}

// xmlText pulls the text runs matched by runRe out of an Office XML part.
// Every paraRe match ends a line.
func xmlText(xml string, runRe, paraRe *regexp.Regexp) string {
	if paraRe != nil {
		xml = paraRe.ReplaceAllString(xml, "\x00")
	}
	var sb strings.Builder
	lastEnd := 0
	for _, m := range runRe.FindAllStringSubmatchIndex(xml, -1) {
		sb.WriteString(strings.Repeat("\n", strings.Count(xml[lastEnd:m[0]], "\x00")))
		sb.WriteString(html.UnescapeString(xml[m[2]:m[3]]))
		lastEnd = m[1]
	}
	return strings.TrimSpace(blankLinesRe.ReplaceAllString(sb.String(), "\n\n"))
}

func extractPPTX(filePath string) ([]section, error) {
	zr, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var sections []section
	for _, file := range zr.File {
		m := pptxSlideRe.FindStringSubmatch(file.Name)
		if m == nil {
			continue
		}
		num, _ := strconv.Atoi(m[1])
		rc, err := file.Open()
		if err != nil {
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}
		runs := pptxTextRe.FindAllStringSubmatch(string(data), -1)
		parts := make([]string, 0, len(runs))
		for _, r := range runs {
			parts = append(parts, html.UnescapeString(r[1]))
		}
		sections = append(sections, section{Page: num, Text: strings.Join(parts, " ")})
	}
	sort.Slice(sections, func(i, j int) bool { return sections[i].Page < sections[j].Page })
	return sections, nil
}

func extractXLSX(filePath string) ([]section, error) {
	f, err := xlsx.OpenFile(filePath)
	if err != nil {
		return nil, err
	}

	var sections []section
	for sheetNum, sheet := range f.Sheets {
		var text strings.Builder
		text.WriteString(fmt.Sprintf("## Sheet: %s\n", sheet.Name))
		for _, row := range sheet.Rows {
			cells := make([]string, 0, len(row.Cells))
			for _, cell := range row.Cells {
				cells = append(cells, cell.String())
			}
			text.WriteString(strings.Join(cells, "\t") + "\n")
		}
		sections = append(sections, section{Page: sheetNum + 1, Text: text.String()})
	}
	return sections, nil
}

func extractODS(filePath string) ([]section, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var sections []section
	for sheetNum, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			continue
		}
		var text strings.Builder
		text.WriteString(fmt.Sprintf("## Sheet: %s\n", sheetName))
		for _, row := range rows {
			text.WriteString(strings.Join(row, "\t") + "\n")
		}
		sections = append(sections, section{Page: sheetNum + 1, Text: text.String()})
	}
	return sections, nil
}

func extractText(filePath string) ([]section, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return []section{{Page: defaultPageNumber, Text: string(data)}}, nil
}
