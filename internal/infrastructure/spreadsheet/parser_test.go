package spreadsheet_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	domain "github.com/mohammadpnp/alumni-import/internal/domain/alumni"
	"github.com/mohammadpnp/alumni-import/internal/infrastructure/spreadsheet"
)

func collect(t *testing.T, rows *spreadsheet.Rows) []domain.RawRow {
	t.Helper()
	var out []domain.RawRow
	for rows.Next() {
		out = append(out, rows.Row())
	}
	require.NoError(t, rows.Err())
	require.NoError(t, rows.Close())
	return out
}

func requireMalformed(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	var malformed *domain.MalformedFileError
	require.ErrorAs(t, err, &malformed)
}

func TestParseCSV(t *testing.T) {
	t.Parallel()

	src := "Email Address,First Name,Course,Start Year,End Year,Enrollment No.\n" +
		"alice@example.com, Alice ,MBA,2015,2017,E-1\n" +
		",,,,,\n" +
		"bob@example.com,Bob,MBA,2016\n"

	rows, err := spreadsheet.Parse(strings.NewReader(src))
	require.NoError(t, err)
	require.Equal(t, []string{"email", "first_name", "course", "start_year", "end_year", "enrollment_number"}, rows.Header())

	got := collect(t, rows)
	require.Len(t, got, 2)
	require.Equal(t, 1, got[0].RowNumber)
	require.Equal(t, "Alice", got[0].Data.Text("first_name"))
	require.Equal(t, "E-1", got[0].Data.Text("enrollment_number"))
	// the blank record in between still counts
	require.Equal(t, 3, got[1].RowNumber)
	require.Equal(t, "", got[1].Data.Text("end_year"))
}

func TestParseCSVWithUTF8BOM(t *testing.T) {
	t.Parallel()

	src := append([]byte{0xEF, 0xBB, 0xBF}, []byte("email,first_name\nalice@example.com,Alice\n")...)

	rows, err := spreadsheet.Parse(bytes.NewReader(src))
	require.NoError(t, err)
	got := collect(t, rows)
	require.Len(t, got, 1)
	require.Equal(t, "alice@example.com", got[0].Data.Text("email"))
}

func TestParseCSVLatin1(t *testing.T) {
	t.Parallel()

	src := []byte("email,first_name\njose@example.com,Jos\xe9\n")

	rows, err := spreadsheet.Parse(bytes.NewReader(src))
	require.NoError(t, err)
	got := collect(t, rows)
	require.Len(t, got, 1)
	require.Equal(t, "José", got[0].Data.Text("first_name"))
}

func TestParseXLSX(t *testing.T) {
	t.Parallel()

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"email", "first_name", "course", "start_year", "end_year"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"alice@example.com", "Alice", "MBA", 2015, 2017}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]any{"bob@example.com", "Bob", "MBA", 2016, 2018}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	rows, err := spreadsheet.Parse(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	got := collect(t, rows)
	require.Len(t, got, 2)
	require.Equal(t, "2015", got[0].Data.Text("start_year"))
	require.Equal(t, "bob@example.com", got[1].Data.Text("email"))
	require.Equal(t, 2, got[1].RowNumber)
}

func TestParseXLSXRowNumbersFollowTheSheet(t *testing.T) {
	t.Parallel()

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"email", "first_name"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"alice@example.com", "Alice"}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]any{"", " "}))
	require.NoError(t, f.SetSheetRow(sheet, "A4", &[]any{"bob@example.com", "Bob"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	rows, err := spreadsheet.Parse(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	got := collect(t, rows)
	require.Len(t, got, 2)
	require.Equal(t, 1, got[0].RowNumber)
	require.Equal(t, 3, got[1].RowNumber)
}

func TestParseMalformed(t *testing.T) {
	t.Parallel()

	cases := map[string][]byte{
		"empty":           {},
		"whitespace":      []byte("  \n\n"),
		"header only":     []byte("email,first_name\n"),
		"unknown header":  []byte("foo,bar\n1,2\n"),
		"binary":          {0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0x0D, 'I', 'H', 'D', 'R'},
		"blank data rows": []byte("email,first_name\n,\n,\n"),
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := spreadsheet.Parse(bytes.NewReader(src))
			requireMalformed(t, err)
		})
	}
}

func TestParserMaxRows(t *testing.T) {
	t.Parallel()

	src := "email,first_name\na@example.com,A\nb@example.com,B\nc@example.com,C\n"

	parser := spreadsheet.NewParser(2)
	rows, err := parser.Parse(strings.NewReader(src))
	require.NoError(t, err)

	count := 0
	for rows.Next() {
		count++
	}
	require.Equal(t, 2, count)
	requireMalformed(t, rows.Err())
}
