package recipe

import (
	"context"
	"testing"

	apperrors "github.com/mzollin/CocktailMixer/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogVisible(t *testing.T) {
	c := DemoCatalog()

	sober := c.Visible(false)
	require.Len(t, sober, len(c.NonAlcoholic))
	for _, r := range sober {
		assert.False(t, r.Alcoholic)
	}

	all := c.Visible(true)
	require.Len(t, all, len(c.NonAlcoholic)+len(c.Alcoholic))
	// 非酒精在前，顺序固定
	assert.Equal(t, c.NonAlcoholic[0].Name, all[0].Name)
	assert.Equal(t, c.Alcoholic[len(c.Alcoholic)-1].Name, all[len(all)-1].Name)
	assert.Equal(t, all, c.Visible(true))
}

func TestMemoryStoreLookup(t *testing.T) {
	store := NewMemoryStore(DemoCatalog())
	ctx := context.Background()

	tests := []struct {
		name    string
		wantErr bool
	}{
		{"Gin Tonic", false},
		{"Virgin Mojito", false},
		{"Negroni", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := store.Recipe(ctx, tt.name)
			if tt.wantErr {
				assert.True(t, apperrors.Is(err, apperrors.ErrCocktailNotFound))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.name, r.Name)
			assert.NotEmpty(t, r.Parts)
		})
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore(DemoCatalog())
	ctx := context.Background()

	r, err := store.Recipe(ctx, "Gin Tonic")
	require.NoError(t, err)
	r.Parts[0].Volume = 999

	again, err := store.Recipe(ctx, "Gin Tonic")
	require.NoError(t, err)
	assert.Equal(t, 100.0, again.Parts[0].Volume)
}

func TestMemoryStoreReplace(t *testing.T) {
	store := NewMemoryStore(Catalog{})
	ctx := context.Background()

	c, err := store.Catalog(ctx)
	require.NoError(t, err)
	assert.Empty(t, c.Visible(true))

	store.Replace(Catalog{
		Alcoholic:   []Recipe{{Name: "Shot", Alcoholic: true, Parts: []Part{{"vodka", 1}}}},
		Ingredients: []Ingredient{{Name: "vodka", Density: 0.95}},
	})

	d, err := store.Densities(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.95, d["vodka"])
	r, err := store.Recipe(ctx, "Shot")
	require.NoError(t, err)
	assert.Equal(t, CollectionAlcoholic, r.Collection())
}
