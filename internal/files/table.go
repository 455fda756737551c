package files

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"finset/pkg/contracts/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadOptions configures CSV table reading
type ReadOptions struct {
	// Comma is the field separator; zero means detect from the header line
	Comma rune
	// NoHeader treats the first line as data and names columns col_0..col_n
	NoHeader bool
}

// ReadTable loads a CSV file into a table
func ReadTable(path string, opts ReadOptions) (domain.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Table{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	t, err := DecodeTable(f, opts)
	if err != nil {
		return domain.Table{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return t, nil
}

// DecodeTable parses CSV content into a table
func DecodeTable(r io.Reader, opts ReadOptions) (domain.Table, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(3); err == nil && bytes.Equal(head, utf8BOM) {
		br.Discard(3)
	}

	comma := opts.Comma
	if comma == 0 {
		line, err := br.Peek(4096)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
			return domain.Table{}, err
		}
		comma = detectComma(string(line))
	}

	reader := csv.NewReader(br)
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return domain.Table{}, err
	}
	if len(records) == 0 {
		return domain.Table{}, fmt.Errorf("empty table")
	}

	var t domain.Table
	if opts.NoHeader {
		cols := make([]string, len(records[0]))
		for i := range cols {
			cols[i] = fmt.Sprintf("col_%d", i)
		}
		t = domain.NewTable(cols...)
	} else {
		header := make([]string, len(records[0]))
		for i, h := range records[0] {
			header[i] = strings.TrimSpace(h)
		}
		t = domain.NewTable(header...)
		records = records[1:]
	}

	for _, rec := range records {
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" && len(t.Columns) > 1 {
			continue
		}
		t.AppendRow(rec...)
	}
	return t, nil
}

// detectComma picks the separator that appears most often in the first line
func detectComma(sample string) rune {
	if i := strings.IndexByte(sample, '\n'); i >= 0 {
		sample = sample[:i]
	}
	best, bestCount := ',', strings.Count(sample, ",")
	for _, c := range []rune{';', '\t', '|'} {
		if n := strings.Count(sample, string(c)); n > bestCount {
			best, bestCount = c, n
		}
	}
	return best
}

// EncodeTable writes a table as comma separated CSV without a BOM
func EncodeTable(w io.Writer, t domain.Table) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(t.Columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, row := range t.Rows {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}
