package spreadsheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/xuri/excelize/v2"

	domain "github.com/mohammadpnp/alumni-import/internal/domain/alumni"
)

const (
	mimeXLSX        = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	mimeOctetStream = "application/octet-stream"

	DefaultMaxRows = 50000
)

type Parser struct {
	MaxRows int
}

func NewParser(maxRows int) *Parser {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &Parser{MaxRows: maxRows}
}

func (p *Parser) Parse(r io.Reader) (domain.RowSource, error) {
	rows, err := Parse(r)
	if err != nil {
		return nil, err
	}
	rows.maxRows = p.MaxRows
	return rows, nil
}

// Rows is a lazy, single-pass iterator over the data rows of an upload. RowNumber is the record's
// position after the header, blank records included, so it points at the same line an operator sees
// in the sheet. encoding/csv drops lines that are completely empty, so those are not counted for CSV.
type Rows struct {
	next     func() ([]string, error)
	closeFn  func() error
	header   []string
	pending  *domain.RawRow
	current  domain.RawRow
	position int
	emitted  int
	maxRows  int
	err      error
}

// Parse reads the header and the first data row eagerly so an empty upload fails here.
func Parse(r io.Reader) (*Rows, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, malformed("read upload", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, malformed("file is empty", nil)
	}

	mime := mimetype.Detect(data)
	var rows *Rows
	switch {
	case mime.Is(mimeXLSX):
		rows, err = newXLSXRows(data)
	case strings.HasPrefix(mime.String(), "text/") || mime.Is(mimeOctetStream):
		rows, err = newCSVRows(data)
	default:
		return nil, malformed(fmt.Sprintf("unsupported file type %s", mime.String()), nil)
	}
	if err != nil {
		return nil, err
	}

	header, err := rows.next()
	if err != nil {
		_ = rows.Close()
		if errors.Is(err, io.EOF) {
			return nil, malformed("no header row", nil)
		}
		return nil, malformed("read header row", err)
	}
	names, recognised := normalizeHeaderRow(header)
	if !recognised {
		_ = rows.Close()
		return nil, malformed("header row has no recognised columns", nil)
	}
	rows.header = names

	first, ok := rows.advance()
	if !ok {
		_ = rows.Close()
		if rows.err != nil {
			return nil, rows.err
		}
		return nil, malformed("no data rows", nil)
	}
	rows.pending = &first
	return rows, nil
}

func (r *Rows) Next() bool {
	if r.err != nil {
		return false
	}
	if r.pending != nil {
		r.current = *r.pending
		r.pending = nil
		return true
	}
	row, ok := r.advance()
	if !ok {
		return false
	}
	r.current = row
	return true
}

func (r *Rows) Row() domain.RawRow {
	return r.current
}

func (r *Rows) Err() error {
	return r.err
}

// Header returns the normalized column names by position.
func (r *Rows) Header() []string {
	return r.header
}

func (r *Rows) Close() error {
	if r.closeFn == nil {
		return nil
	}
	err := r.closeFn()
	r.closeFn = nil
	return err
}

func (r *Rows) advance() (domain.RawRow, bool) {
	for {
		cells, err := r.next()
		if errors.Is(err, io.EOF) {
			return domain.RawRow{}, false
		}
		if err != nil {
			r.err = malformed(fmt.Sprintf("read row %d", r.position+1), err)
			return domain.RawRow{}, false
		}
		r.position++
		if blank(cells) {
			continue
		}

		r.emitted++
		if r.maxRows > 0 && r.emitted > r.maxRows {
			r.err = malformed(fmt.Sprintf("more than %d data rows", r.maxRows), nil)
			return domain.RawRow{}, false
		}

		data := make(domain.RawData, len(r.header))
		for i, name := range r.header {
			if name == "" {
				continue
			}
			value := ""
			if i < len(cells) {
				value = strings.TrimSpace(cells[i])
			}
			data[name] = value
		}
		return domain.RawRow{RowNumber: r.position, Data: data}, true
	}
}

func newCSVRows(data []byte) (*Rows, error) {
	decoded, _, err := decodeText(data)
	if err != nil {
		return nil, malformed("decode text", err)
	}
	if bytes.IndexByte(decoded, 0) >= 0 {
		return nil, malformed("file is not text", nil)
	}

	reader := csv.NewReader(bytes.NewReader(decoded))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	return &Rows{next: reader.Read}, nil
}

func newXLSXRows(data []byte) (*Rows, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, malformed("open workbook", err)
	}

	sheet := f.GetSheetName(0)
	if sheet == "" {
		_ = f.Close()
		return nil, malformed("workbook has no sheets", nil)
	}
	sheetRows, err := f.Rows(sheet)
	if err != nil {
		_ = f.Close()
		return nil, malformed("read sheet "+sheet, err)
	}

	return &Rows{
		next: func() ([]string, error) {
			if !sheetRows.Next() {
				if err := sheetRows.Error(); err != nil {
					return nil, err
				}
				return nil, io.EOF
			}
			return sheetRows.Columns()
		},
		closeFn: func() error {
			return errors.Join(sheetRows.Close(), f.Close())
		},
	}, nil
}

func blank(cells []string) bool {
	for _, cell := range cells {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func malformed(reason string, err error) *domain.MalformedFileError {
	return &domain.MalformedFileError{Reason: reason, Err: err}
}
