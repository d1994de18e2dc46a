package domain

import (
	"cmp"
	"fmt"
	"math"
	"slices"
)

// ClassArea is the area covered by one land-cover class inside the region.
type ClassArea struct {
	Class    int     `json:"class"`
	Pixels   int     `json:"pixels"`
	Hectares float64 `json:"hectares"`
}

// LandCoverArea groups the pixels of a classification image by class and sums
// their area in hectares. Pixels outside the region are ignored. Classes are
// returned by descending area.
func LandCoverArea(rc RunContext, img CompositeImage) ([]ClassArea, error) {
	if rc.Region == nil {
		return nil, &InvalidGeometryError{Reason: "no region"}
	}
	g, err := img.Bands.Require(BandLandCover)
	if err != nil {
		return nil, fmt.Errorf("land cover %s: %w", img.ID, err)
	}

	inside := make([]bool, g.Spec.Len())
	for _, px := range rc.Region.Membership(g.Spec) {
		for _, i := range px {
			inside[i] = true
		}
	}

	byClass := make(map[int]*ClassArea)
	for i, in := range inside {
		v := g.Values[i]
		if !in || math.IsNaN(v) {
			continue
		}
		class := int(math.Round(v))
		a, ok := byClass[class]
		if !ok {
			a = &ClassArea{Class: class}
			byClass[class] = a
		}
		a.Pixels++
		a.Hectares += g.Spec.PixelAreaHectares(i / g.Spec.Cols)
	}

	out := make([]ClassArea, 0, len(byClass))
	for _, a := range byClass {
		out = append(out, *a)
	}
	slices.SortFunc(out, func(a, b ClassArea) int {
		if c := cmp.Compare(b.Hectares, a.Hectares); c != 0 {
			return c
		}
		return cmp.Compare(a.Class, b.Class)
	})
	return out, nil
}
