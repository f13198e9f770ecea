package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestPrintYAML(t *testing.T) {
	data := struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	}{
		ID:   "default",
		Name: "Default Instance",
	}

	var buf bytes.Buffer
	require.NoError(t, PrintYAML(&buf, data))

	assert.Contains(t, buf.String(), "id: default")

	var decoded map[string]string
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "Default Instance", decoded["name"])
}
