package domain

import (
	"time"

	"github.com/ctessum/geom"
)

// ObservationRef identifies one raster image in a collection before any band
// is read. Properties carry scene metadata such as cloud cover.
type ObservationRef struct {
	Variable   Variable           `json:"variable"`
	ID         string             `json:"id"`
	Timestamp  time.Time          `json:"timestamp"`
	Properties map[string]float64 `json:"properties,omitempty"`
}

// CollectionQuery selects the images of one variable intersecting a date
// range and a bounding box. A nil Bounds matches every image.
type CollectionQuery struct {
	Variable Variable
	Range    DateRange
	Bounds   *geom.Bounds
}
