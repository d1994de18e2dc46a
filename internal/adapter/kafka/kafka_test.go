package kafka

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/couchcryptid/climate-series-service/internal/config"
	"github.com/couchcryptid/climate-series-service/internal/domain"
	"github.com/couchcryptid/climate-series-service/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func TestSerializeToMessage(t *testing.T) {
	now := time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC)
	res := pipeline.Result{
		RunID:    "run-1",
		Kind:     pipeline.KindWaterBalance,
		RegionID: "abc123",
		Rows: []domain.StatRow{{
			Period:    domain.PeriodKey{Year: 2023, Month: time.March},
			FeatureID: "farm",
			Values:    map[domain.Band]*float64{domain.BandWaterBalance: ptr(-3.5), domain.BandET: nil},
		}},
		CompletedAt: now,
	}

	msg, err := serializeToMessage(res)
	require.NoError(t, err)

	assert.Equal(t, []byte("run-1"), msg.Key)
	assert.Contains(t, string(msg.Value), `"kind":"water_balance"`)
	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "kind", msg.Headers[0].Key)
	assert.Equal(t, []byte("water_balance"), msg.Headers[0].Value)
	assert.Equal(t, "region_id", msg.Headers[1].Key)
	assert.Equal(t, "completed_at", msg.Headers[2].Key)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[2].Value)

	var decoded struct {
		Rows []struct {
			Period string              `json:"period"`
			Values map[string]*float64 `json:"values"`
		} `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	require.Len(t, decoded.Rows, 1)
	assert.Equal(t, "2023-03", decoded.Rows[0].Period)
	assert.Nil(t, decoded.Rows[0].Values["ET"], "undefined statistics serialize as null")
	assert.Equal(t, -3.5, *decoded.Rows[0].Values["water_balance"])
}

func TestSerializeToMessage_NaNFails(t *testing.T) {
	res := pipeline.Result{
		RunID:   "run-2",
		Summary: &domain.Summary{Bands: []domain.BandStats{{Band: domain.BandNDVI, Mean: math.NaN()}}},
	}
	_, err := serializeToMessage(res)
	require.Error(t, err)
}

func TestNewWriter(t *testing.T) {
	w := NewWriter(&config.Config{KafkaBrokers: []string{"localhost:9092"}, KafkaResultsTopic: "results"}, nil)
	assert.Equal(t, "kafka", w.Name())
	assert.Equal(t, "results", w.writer.Topic)
	require.NoError(t, w.Close())
}
