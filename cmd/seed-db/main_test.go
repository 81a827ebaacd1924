package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadProducts_EmbeddedCatalog(t *testing.T) {
	products, err := readProducts("")
	require.NoError(t, err)
	require.NotEmpty(t, products)

	ids := make(map[string]bool, len(products))
	for _, p := range products {
		ids[p.ID] = true
	}
	assert.True(t, ids["clay-vase"])
	assert.True(t, ids["woven-basket"])
}

func TestReadProducts_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id":"p1","name":"Lamp","price":"12.50","seller_id":"s1"}]`), 0o600))

	products, err := readProducts(path)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Lamp", products[0].Name)
	assert.Equal(t, "12.5", products[0].Price.String())
	assert.Equal(t, "s1", products[0].SellerID)
}

func TestParseProducts_Invalid(t *testing.T) {
	for _, tt := range []struct {
		name   string
		data   string
		errMsg string
	}{
		{name: "not json", data: `{`, errMsg: "parse products JSON"},
		{name: "missing name", data: `[{"id":"p1","price":"1"}]`, errMsg: "id and name are required"},
		{name: "negative price", data: `[{"id":"p1","name":"x","price":"-1"}]`, errMsg: "negative price"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseProducts([]byte(tt.data))
			require.ErrorContains(t, err, tt.errMsg)
		})
	}
}
