package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metka-hub/metka-attendance-hub/internal/domain/geo"
)

func TestCreateSlab(t *testing.T) {
	store := newMemStore()
	handler := NewCreateSlabHandler(store.Slabs(), nil)

	result, err := handler.Handle(context.Background(), CreateSlabCommand{
		Coordinates: geo.Coordinates{Lat: 60.2241, Long: 24.7578},
		Location:    "P527",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.ID)

	got, err := store.Slabs().Get(context.Background(), result.ID)
	require.NoError(t, err)
	assert.Equal(t, result.Location, got.Location)
	assert.Equal(t, result.Coordinates, got.Coordinates)
}

func TestCreateSlabValidation(t *testing.T) {
	handler := NewCreateSlabHandler(newMemStore().Slabs(), nil)

	_, err := handler.Handle(context.Background(), CreateSlabCommand{
		Coordinates: geo.Coordinates{Lat: 60.2241, Long: 24.7578},
	})
	assert.Error(t, err)
}
