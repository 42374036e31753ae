package importer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestParse_CSV(t *testing.T) {
	data := []byte("\xef\xbb\xbfName, Email\n\nJane Smith, jane@example.com\n,\n\"Smith, Bob\",bob@example.com\n")

	wb, err := Parse("landlords.csv", data, 0)

	require.NoError(t, err)
	require.Len(t, wb.Sheets, 1)
	sheet := wb.Sheets[0]
	assert.Equal(t, []string{"Name", "Email"}, sheet.Headers)
	require.Len(t, sheet.Rows, 2)
	assert.Equal(t, 3, sheet.Rows[0].Index)
	assert.Equal(t, "Jane Smith", sheet.Rows[0].Cell(0))
	assert.Equal(t, 5, sheet.Rows[1].Index)
	assert.Equal(t, "Smith, Bob", sheet.Rows[1].Cell(0))
	assert.Equal(t, "", sheet.Rows[1].Cell(7))
	assert.Equal(t, 2, wb.TotalRows())
}

func TestParse_Excel(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", "Notes"))
	_, err := f.NewSheet("Tenants")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("Tenants", "A1", &[]interface{}{"Name", "Email"}))
	require.NoError(t, f.SetSheetRow("Tenants", "A2", &[]interface{}{"Alex Doe", "alex@example.com"}))
	require.NoError(t, f.SetSheetRow("Tenants", "A4", &[]interface{}{"Sam Roe", ""}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	wb, err := Parse("upload.XLSX", buf.Bytes(), 0)

	require.NoError(t, err)
	require.Len(t, wb.Sheets, 1, "empty sheets are dropped")
	assert.Equal(t, "Tenants", wb.Sheets[0].Name)
	require.Len(t, wb.Sheets[0].Rows, 2)
	assert.Equal(t, 2, wb.Sheets[0].Rows[0].Index)
	assert.Equal(t, 4, wb.Sheets[0].Rows[1].Index)
	assert.Equal(t, "Sam Roe", wb.Sheets[0].Rows[1].Cell(0))
}

func TestParse_FatalErrors(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		data     []byte
		maxBytes int64
		want     error
	}{
		{"unsupported extension", "report.pdf", []byte("%PDF"), 0, ErrUnsupportedFormat},
		{"legacy excel", "old.xls", []byte{0xd0, 0xcf}, 0, ErrUnsupportedFormat},
		{"corrupt workbook", "broken.xlsx", []byte("definitely not a zip"), 0, ErrUnreadable},
		{"header only", "empty.csv", []byte("Name,Email\n"), 0, ErrNoData},
		{"blank file", "blank.csv", []byte("\n\n"), 0, ErrNoData},
		{"too large", "big.csv", []byte("Name\nJane\n"), 4, ErrFileTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wb, err := Parse(tt.filename, tt.data, tt.maxBytes)

			assert.Nil(t, wb)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			var fatalErr *FatalError
			assert.True(t, errors.As(err, &fatalErr))
			assert.NotEmpty(t, fatalErr.Reason)
		})
	}
}

func TestIsSupported(t *testing.T) {
	assert.True(t, IsSupported("a.csv"))
	assert.True(t, IsSupported("A.XLSX"))
	assert.False(t, IsSupported("a.numbers"))
}
