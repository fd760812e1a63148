package dataset

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shehryarbajwa/vizai/pkg/models"
)

// DefaultPreviewRows matches a DataFrame head().
const DefaultPreviewRows = 5

var candidateDelimiters = []rune{',', ';', '\t', '|'}

// Preview reads the header and the first n data rows of the CSV at path.
// Short rows are padded and long rows truncated to the header width.
func Preview(path string, n int) (*models.Preview, error) {
	if n <= 0 {
		n = DefaultPreviewRows
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	first, err := br.Peek(4096)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("read csv: %w", err)
	}

	r := csv.NewReader(br)
	r.Comma = sniffDelimiter(string(first))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return &models.Preview{Columns: []string{}, Rows: [][]string{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\uFEFF")
	}

	p := &models.Preview{Columns: header, Rows: make([][]string, 0, n)}
	for len(p.Rows) < n {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(p.Rows)+1, err)
		}
		row := make([]string, len(header))
		copy(row, rec)
		p.Rows = append(p.Rows, row)
	}
	return p, nil
}

// sniffDelimiter picks the candidate that occurs most often in the first
// line outside quotes. Comma wins ties and empty input.
func sniffDelimiter(sample string) rune {
	line, _, _ := strings.Cut(sample, "\n")
	counts := make(map[rune]int, len(candidateDelimiters))
	inQuotes := false
	for _, c := range line {
		if c == '"' {
			inQuotes = !inQuotes
			continue
		}
		if !inQuotes {
			counts[c]++
		}
	}
	best := ','
	for _, d := range candidateDelimiters {
		if counts[d] > counts[best] {
			best = d
		}
	}
	return best
}
