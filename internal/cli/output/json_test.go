package output

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintJSON(t *testing.T) {
	data := struct {
		ID      string   `json:"id"`
		Name    string   `json:"name"`
		Scripts []string `json:"scripts"`
	}{
		ID:      "default",
		Name:    "Default Instance",
		Scripts: []string{"scripts/seed-users.json"},
	}

	var buf bytes.Buffer
	require.NoError(t, PrintJSON(&buf, data))

	// Indented output
	assert.Contains(t, buf.String(), "  \"id\": \"default\"")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "Default Instance", decoded["name"])
}
