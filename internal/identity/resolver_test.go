package identity_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jonesrussell/ml-inventory/internal/identity"
)

func TestResolve_URLShapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		permalink string
		want      identity.Identity
	}{
		{
			name:      "unified product",
			permalink: "https://www.mercadolibre.com.mx/buzon-de-sugerencias/up/MLMU3674594112",
			want:      identity.Identity{UpID: "MLMU3674594112", IsUnified: true},
		},
		{
			name:      "catalog product",
			permalink: "https://www.mercadolibre.com.mx/detergente-en-polvo-roma/p/MLM32624978",
			want:      identity.Identity{ProductID: "MLM32624978", IsCatalog: true},
		},
		{
			name:      "articulo dashed",
			permalink: "https://articulo.mercadolibre.com.mx/MLM-4714040498-iphone-15-_JM",
			want:      identity.Identity{ItemID: "MLM4714040498"},
		},
		{
			name:      "direct item",
			permalink: "https://www.mercadolibre.com.mx/MLM4714040498",
			want:      identity.Identity{ItemID: "MLM4714040498"},
		},
		{
			name:      "wid query parameter",
			permalink: "https://www.mercadolibre.com.mx/some-product?wid=MLM4714040498",
			want:      identity.Identity{ItemID: "MLM4714040498"},
		},
		{
			name:      "no recognizable pattern",
			permalink: "https://www.mercadolibre.com.mx/categorias",
			want:      identity.Identity{},
		},
		{
			name:      "empty permalink",
			permalink: "",
			want:      identity.Identity{},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, identity.Resolve(tt.permalink))
		})
	}
}

// A URL carrying both a catalog segment and a bare item token yields only the
// product ID: priority order stops at the first matching shape.
func TestResolve_CatalogBeatsBareItemToken(t *testing.T) {
	t.Parallel()

	id := identity.Resolve("https://www.mercadolibre.com.mx/iphone/p/MLM1054106937?searched=MLM4714040498")

	assert.Equal(t, "MLM1054106937", id.ProductID)
	assert.Empty(t, id.ItemID)
	assert.Empty(t, id.UpID)
	assert.True(t, id.IsCatalog)
}

func TestResolve_ExactlyOneIDSet(t *testing.T) {
	t.Parallel()

	permalinks := []string{
		"https://www.mercadolibre.com.mx/up/MLMU3485454951",
		"https://www.mercadolibre.com.mx/kit-tatuar/p/MLM46062703",
		"https://articulo.mercadolibre.com.mx/MLM-1373603054-placa-tubo-_JM",
		"https://www.mercadolibre.com.mx/MLM987654321",
		"https://www.mercadolibre.com.mx/item?wid=MLM123456789",
	}

	for _, permalink := range permalinks {
		id := identity.Resolve(permalink)

		set := 0
		for _, v := range []string{id.ItemID, id.ProductID, id.UpID} {
			if v != "" {
				set++
			}
		}
		assert.Equal(t, 1, set, "permalink %s", permalink)
	}
}

func TestChannelKey_Priority(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		id         identity.Identity
		permalink  string
		wantID     string
		wantSource identity.IDSource
	}{
		{
			name:       "product id wins",
			id:         identity.Identity{ProductID: "MLM32624978"},
			permalink:  "https://www.mercadolibre.com.mx/p/MLM32624978",
			wantID:     "MLM32624978",
			wantSource: identity.SourceProductID,
		},
		{
			name:       "item id next",
			id:         identity.Identity{ItemID: "MLM4714040498"},
			permalink:  "https://articulo.mercadolibre.com.mx/MLM-4714040498-_JM",
			wantID:     "MLM4714040498",
			wantSource: identity.SourceItemID,
		},
		{
			name:       "up id next",
			id:         identity.Identity{UpID: "MLMU3674594112"},
			permalink:  "https://www.mercadolibre.com.mx/up/MLMU3674594112",
			wantID:     "MLMU3674594112",
			wantSource: identity.SourceUpID,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			key := identity.ChannelKey(tt.id, tt.permalink)
			assert.Equal(t, tt.wantID, key.ChannelItemID)
			assert.Equal(t, tt.wantSource, key.Source)
		})
	}
}

func TestChannelKey_HashFallback(t *testing.T) {
	t.Parallel()

	permalink := "https://www.mercadolibre.com.mx/pagina-sin-id"
	key := identity.ChannelKey(identity.Identity{}, permalink)

	assert.Equal(t, identity.SourceHash, key.Source)
	assert.Len(t, key.ChannelItemID, 40)
	for _, c := range key.ChannelItemID {
		assert.Contains(t, "0123456789abcdef", string(c))
	}
}

func TestChannelKey_Deterministic(t *testing.T) {
	t.Parallel()

	permalink := "https://www.mercadolibre.com.mx/pagina-sin-id"
	first := identity.ChannelKey(identity.Resolve(permalink), permalink)

	for i := 0; i < 10; i++ {
		again := identity.ChannelKey(identity.Resolve(permalink), permalink)
		assert.Equal(t, first, again)
	}
}

// An empty permalink must yield an empty key, never SHA-1 of "".
func TestChannelKey_EmptyPermalink(t *testing.T) {
	t.Parallel()

	key := identity.ChannelKey(identity.Identity{}, "")
	assert.True(t, key.Empty())
	assert.Equal(t, identity.SourceHash, key.Source)
}

func TestSellerID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		rawURL string
		wantID int64
		wantOK bool
	}{
		{"tienda", "https://listado.mercadolibre.com.mx/tienda/1785384134", 1785384134, true},
		{"legacy custid", "https://listado.mercadolibre.com.mx/_CustId_1785384134", 1785384134, true},
		{"category scoped custid", "https://listado.mercadolibre.com.mx/_CustId_42_PrCategId_AD", 42, true},
		{"no seller", "https://www.mercadolibre.com.mx/MLM4714040498", 0, false},
		{"empty", "", 0, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			id, ok := identity.SellerID(tt.rawURL)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantID, id)
		})
	}
}
