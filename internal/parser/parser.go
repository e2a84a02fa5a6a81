// Package parser reads and writes delimiter-separated deck files.
package parser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Row is one card line of a deck file. Image fields hold raw locators
// (data URI, URL or media path) exactly as written in the file.
type Row struct {
	Question      string
	Answer        string
	QuestionImage string
	AnswerImage   string
}

// Header is written as the first line of every generated deck file.
var Header = []string{"Question", "Answer", "QuestionImage", "AnswerImage"}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParseFile reads a file from the given path and extracts all rows.
func ParseFile(path string) ([]Row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads a deck from r. The first line is a header; its content
// decides the delimiter. Rows missing a question or an answer are skipped.
func Parse(r io.Reader) ([]Row, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read deck: %w", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = DetectDelimiter(firstLine(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		if len(record) < 2 {
			continue
		}

		row := Row{
			Question: strings.TrimSpace(record[0]),
			Answer:   strings.TrimSpace(record[1]),
		}
		if row.Question == "" || row.Answer == "" {
			continue
		}
		if len(record) > 2 {
			row.QuestionImage = strings.TrimSpace(record[2])
		}
		if len(record) > 3 {
			row.AnswerImage = strings.TrimSpace(record[3])
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// DetectDelimiter picks the field separator from a header line.
// A semicolon wins over a comma, a comma over a tab; semicolon is the default.
func DetectDelimiter(header string) rune {
	switch {
	case strings.ContainsRune(header, ';'):
		return ';'
	case strings.ContainsRune(header, ','):
		return ','
	case strings.ContainsRune(header, '\t'):
		return '\t'
	default:
		return ';'
	}
}

func firstLine(data []byte) string {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		data = data[:i]
	}
	return string(data)
}

// Write emits rows as a semicolon-separated deck with a header line.
// Fields containing the delimiter, quotes or line breaks are quoted.
func Write(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	cw.Comma = ';'

	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, row := range rows {
		record := []string{row.Question, row.Answer, row.QuestionImage, row.AnswerImage}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
