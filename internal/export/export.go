package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"lecture-rag/internal/quiz"
)

const SheetName = "Wrong Answers"

var header = []interface{}{"Recorded At", "Subject", "Type", "Question", "Options", "Correct Answer", "Your Answer", "Explanation"}

// WrongAnswersXLSX renders the records as a workbook with one header row and one row per record.
func WrongAnswersXLSX(records []quiz.WrongAnswer) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	lastCol, _ := excelize.ColumnNumberToName(len(header))
	if err := f.SetCellStyle(SheetName, "A1", lastCol+"1", bold); err != nil {
		return nil, err
	}

	for i, rec := range records {
		q := rec.Quiz
		row := []interface{}{
			rec.RecordedAt.Format(time.RFC3339),
			q.Subject,
			q.Kind.Label(),
			q.Question,
			formatOptions(q.Options),
			q.CorrectAnswerText(),
			rec.Submitted.Display(q),
			q.Explanation,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}
	if err := f.SetColWidth(SheetName, "D", "D", 60); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func formatOptions(options []string) string {
	parts := make([]string, len(options))
	for i, o := range options {
		parts[i] = fmt.Sprintf("%c. %s", 'A'+rune(i), o)
	}
	return strings.Join(parts, "\n")
}
