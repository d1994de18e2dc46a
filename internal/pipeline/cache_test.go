package pipeline_test

import (
	"testing"
	"time"

	"github.com/couchcryptid/climate-series-service/internal/domain"
	"github.com/couchcryptid/climate-series-service/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(region string) pipeline.RunKey {
	return pipeline.RunKey{RegionID: region, Kind: pipeline.KindDrought, Variables: "terraclimate_pdsi"}
}

func TestResultCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := pipeline.NewResultCache(2)
	c.Put(key("a"), pipeline.Result{RunID: "1"})
	c.Put(key("b"), pipeline.Result{RunID: "2"})

	_, ok := c.Get(key("a"))
	require.True(t, ok)

	c.Put(key("c"), pipeline.Result{RunID: "3"})
	assert.Equal(t, 2, c.Len())

	_, ok = c.Get(key("b"))
	assert.False(t, ok, "b was least recently used")
	r, ok := c.Get(key("a"))
	require.True(t, ok)
	assert.Equal(t, "1", r.RunID)
	_, ok = c.Get(key("c"))
	assert.True(t, ok)
}

func TestResultCache_PutReplaces(t *testing.T) {
	c := pipeline.NewResultCache(0)
	c.Put(key("a"), pipeline.Result{RunID: "1"})
	c.Put(key("a"), pipeline.Result{RunID: "2"})
	assert.Equal(t, 1, c.Len())

	r, ok := c.Get(key("a"))
	require.True(t, ok)
	assert.Equal(t, "2", r.RunID)

	c.Put(key("b"), pipeline.Result{RunID: "3"})
	assert.Equal(t, 1, c.Len())
}

func TestResultCache_KeyIncludesParameters(t *testing.T) {
	c := pipeline.NewResultCache(4)
	k := key("a")
	c.Put(k, pipeline.Result{RunID: "1"})

	other := k
	other.End++
	_, ok := c.Get(other)
	assert.False(t, ok)
}

func TestResultCache_CallersCannotMutateEntries(t *testing.T) {
	v := 1.5
	stored := pipeline.Result{
		RunID: "1",
		Rows: []domain.StatRow{{
			Period:    domain.PeriodKey{Year: 2023, Month: time.January},
			FeatureID: "farm",
			Values:    map[domain.Band]*float64{domain.BandPDSI: &v},
		}},
		Summary: &domain.Summary{
			Bands:  []domain.BandStats{{Band: domain.BandPDSI, Mean: 1.5, Count: 1}},
			Excess: &domain.Indicator{Label: domain.LabelExcess, Value: 1.5},
		},
		Drought: &domain.DroughtTable{Monthly: []domain.DroughtBucket{{
			StatRow: domain.StatRow{Values: map[domain.Band]*float64{domain.BandPDSI: &v}},
			Class:   domain.DroughtNearNormal,
		}}},
	}
	c := pipeline.NewResultCache(1)
	c.Put(key("a"), stored)
	v = 99 // the caller keeps writing to what it stored

	got, ok := c.Get(key("a"))
	require.True(t, ok)
	*got.Rows[0].Values[domain.BandPDSI] = -7
	got.Rows[0].FeatureID = "changed"
	got.Summary.Bands[0].Mean = -7
	got.Summary.Excess.Value = -7
	*got.Drought.Monthly[0].Values[domain.BandPDSI] = -7

	again, ok := c.Get(key("a"))
	require.True(t, ok)
	assert.Equal(t, 1.5, *again.Rows[0].Values[domain.BandPDSI])
	assert.Equal(t, "farm", again.Rows[0].FeatureID)
	assert.Equal(t, 1.5, again.Summary.Bands[0].Mean)
	assert.Equal(t, 1.5, again.Summary.Excess.Value)
	assert.Equal(t, 1.5, *again.Drought.Monthly[0].Values[domain.BandPDSI])
}
