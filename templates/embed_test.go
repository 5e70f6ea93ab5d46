package templates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTemplates(t *testing.T) {
	tmpl, err := LoadTemplates()
	require.NoError(t, err)
	assert.NotNil(t, tmpl.Lookup("setup.html"))
	assert.NotNil(t, tmpl.Lookup("amh_setup.html"))
}
