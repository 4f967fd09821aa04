package cmd

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragline/ragline/internal/component"
)

func TestComponents_ListsAllCategories(t *testing.T) {
	out, err := execute(t, "components")
	require.NoError(t, err)

	for _, cat := range component.Categories() {
		assert.Contains(t, out, string(cat)+":")
	}
	assert.Contains(t, out, "fixed")
	assert.Contains(t, out, "hybrid")
	assert.Contains(t, out, "rerank")
}

func TestComponents_SingleCategory(t *testing.T) {
	out, err := execute(t, "components", "--category", "chunkers")
	require.NoError(t, err)

	assert.Contains(t, out, "fixed")
	assert.Contains(t, out, "semantic")
	assert.NotContains(t, out, "parsers:")
}

func TestComponents_JSON(t *testing.T) {
	out, err := execute(t, "components", "--json")
	require.NoError(t, err)

	var listing map[string][]component.Info
	require.NoError(t, json.Unmarshal([]byte(out), &listing))
	assert.Len(t, listing, len(component.Categories()))
	assert.NotEmpty(t, listing["parsers"])
}

func TestComponents_UnknownCategory(t *testing.T) {
	_, err := execute(t, "components", "--category", "widgets")
	assert.ErrorContains(t, err, "widgets")
}
