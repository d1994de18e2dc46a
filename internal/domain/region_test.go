package domain

import (
	"math"
	"testing"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSquareFeature = `{"type":"Feature","id":"farm","properties":{"name":"Farm"},"geometry":{"type":"Polygon","coordinates":[[[0,0],[2,0],[2,2],[0,2],[0,0]]]}}`
	testHalvesFC      = `{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":[[[0,0,10],[1,0,10],[1,2,10],[0,2,10],[0,0,10]]]}},
		{"type":"Feature","properties":{},"geometry":{"type":"MultiPolygon","coordinates":[[[[1,0],[2,0],[2,2],[1,2],[1,0]]]]}}
	]}`
)

func TestParseRegion(t *testing.T) {
	t.Run("single feature keeps its id", func(t *testing.T) {
		r, err := ParseRegion([]byte(testSquareFeature))
		require.NoError(t, err)
		require.Equal(t, 1, r.Len())
		assert.Equal(t, "farm", r.Features()[0].ID)
		assert.Equal(t, &geom.Bounds{Min: geom.Point{X: 0, Y: 0}, Max: geom.Point{X: 2, Y: 2}}, r.Bounds())
	})

	t.Run("collection numbers features and drops elevation", func(t *testing.T) {
		r, err := ParseRegion([]byte(testHalvesFC))
		require.NoError(t, err)
		require.Equal(t, 2, r.Len())
		assert.Equal(t, "0", r.Features()[0].ID)
		assert.Equal(t, "1", r.Features()[1].ID)
		assert.InDelta(t, 2.0, math.Abs(r.Features()[0].Geometry.Area()), 1e-9)
	})

	t.Run("bare polygon", func(t *testing.T) {
		r, err := ParseRegion([]byte(`{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}`))
		require.NoError(t, err)
		assert.Equal(t, 1, r.Len())
	})

	invalid := []struct {
		name string
		doc  string
	}{
		{"empty document", ``},
		{"not json", `{"type":`},
		{"point geometry", `{"type":"Feature","geometry":{"type":"Point","coordinates":[1,2]}}`},
		{"empty collection", `{"type":"FeatureCollection","features":[]}`},
		{"feature without geometry", `{"type":"Feature","properties":{}}`},
		{"short ring", `{"type":"Polygon","coordinates":[[[0,0],[1,0],[0,0]]]}`},
		{"latitude out of range", `{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,95],[0,95],[0,0]]]}`},
		{"zero area", `{"type":"Polygon","coordinates":[[[0,0],[1,0],[2,0],[0,0]]]}`},
		{"unknown type", `{"type":"Topology"}`},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRegion([]byte(tt.doc))
			require.ErrorIs(t, err, ErrInvalidGeometry)
			var ige *InvalidGeometryError
			require.ErrorAs(t, err, &ige)
			assert.NotEmpty(t, ige.UserMessage())
		})
	}
}

func TestNewRegion_Validation(t *testing.T) {
	t.Run("no features", func(t *testing.T) {
		_, err := NewRegion(nil)
		require.ErrorIs(t, err, ErrInvalidGeometry)
	})

	t.Run("duplicate ids", func(t *testing.T) {
		_, err := NewRegion([]Feature{
			{ID: "a", Geometry: rect(0, 0, 1, 1)},
			{ID: "a", Geometry: rect(1, 1, 2, 2)},
		})
		require.ErrorIs(t, err, ErrInvalidGeometry)
	})

	t.Run("nil geometry", func(t *testing.T) {
		_, err := NewRegion([]Feature{{ID: "a"}})
		require.ErrorIs(t, err, ErrInvalidGeometry)
	})

	t.Run("non-finite coordinate", func(t *testing.T) {
		_, err := NewRegion([]Feature{{ID: "a", Geometry: rect(0, 0, math.NaN(), 1)}})
		require.ErrorIs(t, err, ErrInvalidGeometry)
	})
}

func TestRegion_Identity(t *testing.T) {
	a, err := ParseRegion([]byte(testSquareFeature))
	require.NoError(t, err)
	b, err := ParseRegion([]byte(testSquareFeature))
	require.NoError(t, err)
	c := halvesRegion(t)

	assert.Len(t, a.Identity(), 64)
	assert.Equal(t, a.Identity(), b.Identity())
	assert.NotEqual(t, a.Identity(), c.Identity())
}

func TestRegion_FeaturesAt(t *testing.T) {
	r := halvesRegion(t)

	assert.Equal(t, []int{0}, r.FeaturesAt(geom.Point{X: 0.5, Y: 1}))
	assert.Equal(t, []int{1}, r.FeaturesAt(geom.Point{X: 1.5, Y: 1}))
	assert.Empty(t, r.FeaturesAt(geom.Point{X: 3, Y: 1}))
}

func TestRegion_Membership(t *testing.T) {
	r := halvesRegion(t)
	members := r.Membership(testSpec)

	require.Len(t, members, 2)
	assert.Equal(t, []int{0, 1, 4, 5, 8, 9, 12, 13}, members[0])
	assert.Equal(t, []int{2, 3, 6, 7, 10, 11, 14, 15}, members[1])

	t.Run("disjoint lattice", func(t *testing.T) {
		far := GridSpec{MinLon: 10, MaxLat: 12, Dx: 0.5, Dy: 0.5, Cols: 2, Rows: 2}
		for _, px := range r.Membership(far) {
			assert.Empty(t, px)
		}
	})
}

func TestRegion_Clip(t *testing.T) {
	r, err := NewRegion([]Feature{{ID: "west", Geometry: rect(0, 0, 1, 2)}})
	require.NoError(t, err)

	clipped := r.Clip(filled(7))
	assert.Equal(t, 8, clipped.ValidCount())
	assert.Equal(t, 7.0, clipped.At(0, 0))
	assert.True(t, math.IsNaN(clipped.At(0, 3)))
}
