package extract

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func extractText(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if bytes.IndexByte(data, 0) >= 0 {
		return "", fmt.Errorf("binary content in text file")
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("text is not valid utf-8")
	}
	return string(data), nil
}

// extractCSV renders each data row as "header: value | header: value".
func extractCSV(data []byte) (string, error) {
	text, err := extractText(data)
	if err != nil {
		return "", err
	}
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err == io.EOF {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	var lines []string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read csv row: %w", err)
		}
		parts := make([]string, 0, len(rec))
		for i, val := range rec {
			val = strings.TrimSpace(val)
			if val == "" {
				continue
			}
			col := fmt.Sprintf("col%d", i+1)
			if i < len(header) && header[i] != "" {
				col = header[i]
			}
			parts = append(parts, col+": "+val)
		}
		if len(parts) > 0 {
			lines = append(lines, strings.Join(parts, " | "))
		}
	}
	return strings.Join(lines, "\n"), nil
}
