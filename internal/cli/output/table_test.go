package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableData(t *testing.T) {
	table := NewTableData("ID", "Name", "Scripts")

	assert.Equal(t, []string{"ID", "Name", "Scripts"}, table.Headers())
	assert.Empty(t, table.Rows())

	table.AddRow("default", "Default Instance", "0")
	table.AddRow("full", "Full Instance", "3")

	rows := table.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"default", "Default Instance", "0"}, rows[0])
	assert.Equal(t, []string{"full", "Full Instance", "3"}, rows[1])
}

func TestPrintTable(t *testing.T) {
	table := NewTableData("ID", "Name")
	table.AddRow("default", "Default Instance")
	table.AddRow("full", "Full Instance")

	var buf bytes.Buffer
	err := PrintTable(&buf, table)
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "NAME")
	assert.Contains(t, output, "default")
	assert.Contains(t, output, "Default Instance")
	assert.Contains(t, output, "full")
	assert.Contains(t, output, "Full Instance")
}

func TestSimpleTable(t *testing.T) {
	pairs := [][2]string{
		{"Template", "default"},
		{"Files", "4"},
	}

	var buf bytes.Buffer
	err := SimpleTable(&buf, pairs)
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "Template")
	assert.Contains(t, output, "default")
	assert.Contains(t, output, "Files")
	assert.Contains(t, output, "4")
}
