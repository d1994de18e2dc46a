package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
)

// Feature is one polygonal member of a region.
type Feature struct {
	ID       string
	Geometry geom.Polygonal
}

// Region is a validated, immutable ROI of one or more polygonal features.
type Region struct {
	features []Feature
	identity string
	bounds   *geom.Bounds
	index    *rtree.Rtree
}

// indexedFeature adapts a feature for the R-tree.
type indexedFeature struct {
	geom.Polygonal
	pos int
}

// NewRegion validates features and builds the spatial index.
func NewRegion(features []Feature) (*Region, error) {
	if len(features) == 0 {
		return nil, &InvalidGeometryError{Reason: "no features"}
	}
	r := &Region{
		features: slices.Clone(features),
		bounds:   geom.NewBounds(),
		index:    rtree.NewTree(25, 50),
	}
	seen := make(map[string]bool, len(features))
	h := sha256.New()
	for i, f := range r.features {
		if f.ID == "" {
			return nil, &InvalidGeometryError{Reason: fmt.Sprintf("feature %d has no id", i)}
		}
		if seen[f.ID] {
			return nil, &InvalidGeometryError{Reason: fmt.Sprintf("duplicate feature id %q", f.ID)}
		}
		seen[f.ID] = true
		if err := validatePolygonal(f.Geometry); err != nil {
			return nil, &InvalidGeometryError{Reason: fmt.Sprintf("feature %q", f.ID), Err: err}
		}
		r.bounds.Extend(f.Geometry.Bounds())
		r.index.Insert(indexedFeature{Polygonal: f.Geometry, pos: i})

		fmt.Fprintf(h, "%s\n", f.ID)
		for _, poly := range f.Geometry.Polygons() {
			for _, ring := range poly {
				for _, p := range ring {
					fmt.Fprintf(h, "%.9f,%.9f;", p.X, p.Y)
				}
				h.Write([]byte{'|'})
			}
		}
	}
	r.identity = hex.EncodeToString(h.Sum(nil))
	return r, nil
}

func validatePolygonal(g geom.Polygonal) error {
	if g == nil {
		return fmt.Errorf("missing geometry")
	}
	polys := g.Polygons()
	if len(polys) == 0 {
		return fmt.Errorf("empty geometry")
	}
	for _, poly := range polys {
		if len(poly) == 0 {
			return fmt.Errorf("polygon without rings")
		}
		for _, ring := range poly {
			if len(ring) < 4 {
				return fmt.Errorf("ring with %d positions, need at least 4", len(ring))
			}
			for _, p := range ring {
				if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
					return fmt.Errorf("non-finite coordinate")
				}
				if p.X < -180 || p.X > 180 || p.Y < -90 || p.Y > 90 {
					return fmt.Errorf("coordinate (%g, %g) outside lon/lat range", p.X, p.Y)
				}
			}
		}
	}
	if g.Area() == 0 {
		return fmt.Errorf("zero area")
	}
	return nil
}

// Features returns the features in input order.
func (r *Region) Features() []Feature { return slices.Clone(r.features) }

// Len returns the number of features.
func (r *Region) Len() int { return len(r.features) }

// Identity is a content hash of feature ids and coordinates. Two regions with
// the same identity describe the same geometry.
func (r *Region) Identity() string { return r.identity }

// Bounds returns the extent of all features.
func (r *Region) Bounds() *geom.Bounds { return r.bounds.Copy() }

// FeaturesAt returns the positions of features that contain p, in input order.
func (r *Region) FeaturesAt(p geom.Point) []int {
	var hits []int
	for _, s := range r.index.SearchIntersect(p.Bounds()) {
		f := s.(indexedFeature)
		if p.Within(f.Polygonal) != geom.Outside {
			hits = append(hits, f.pos)
		}
	}
	slices.Sort(hits)
	return hits
}

// Membership lists, per feature, the indices of the pixels of spec whose
// centre lies in the feature.
func (r *Region) Membership(spec GridSpec) [][]int {
	members := make([][]int, len(r.features))
	if !spec.Bounds().Overlaps(r.bounds) {
		return members
	}
	for row := 0; row < spec.Rows; row++ {
		for col := 0; col < spec.Cols; col++ {
			for _, f := range r.FeaturesAt(spec.Center(row, col)) {
				members[f] = append(members[f], row*spec.Cols+col)
			}
		}
	}
	return members
}

// Clip masks every pixel whose centre lies outside all features.
func (r *Region) Clip(g Grid) Grid {
	inside := make([]bool, g.Spec.Len())
	for _, px := range r.Membership(g.Spec) {
		for _, i := range px {
			inside[i] = true
		}
	}
	return g.MaskWhere(func(i int) bool { return !inside[i] })
}

// geoJSON covers the Feature, FeatureCollection, and bare geometry shapes.
type geoJSON struct {
	Type        string          `json:"type"`
	ID          any             `json:"id"`
	Properties  map[string]any  `json:"properties"`
	Geometry    *geoJSON        `json:"geometry"`
	Features    []geoJSON       `json:"features"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// ParseRegion decodes a GeoJSON Feature, FeatureCollection, or bare
// Polygon/MultiPolygon geometry. Features without an id are numbered by
// position. Elevation ordinates are dropped.
func ParseRegion(data []byte) (*Region, error) {
	if len(data) == 0 {
		return nil, &InvalidGeometryError{Reason: "empty document"}
	}
	var doc geoJSON
	if err := sonic.Unmarshal(data, &doc); err != nil {
		return nil, &InvalidGeometryError{Reason: "unparsable GeoJSON", Err: err}
	}

	var docs []geoJSON
	switch doc.Type {
	case "FeatureCollection":
		docs = doc.Features
	case "Feature":
		docs = []geoJSON{doc}
	case "Polygon", "MultiPolygon":
		docs = []geoJSON{{Type: "Feature", Geometry: &doc}}
	default:
		return nil, &InvalidGeometryError{Reason: fmt.Sprintf("unsupported GeoJSON type %q", doc.Type)}
	}

	features := make([]Feature, 0, len(docs))
	for i, f := range docs {
		if f.Geometry == nil {
			return nil, &InvalidGeometryError{Reason: fmt.Sprintf("feature %d has no geometry", i)}
		}
		g, err := decodeGeometry(*f.Geometry)
		if err != nil {
			return nil, &InvalidGeometryError{Reason: fmt.Sprintf("feature %d", i), Err: err}
		}
		features = append(features, Feature{ID: featureID(f, i), Geometry: g})
	}
	return NewRegion(features)
}

func featureID(f geoJSON, pos int) string {
	switch id := f.ID.(type) {
	case string:
		if id != "" {
			return id
		}
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	}
	return strconv.Itoa(pos)
}

func decodeGeometry(g geoJSON) (geom.Polygonal, error) {
	switch g.Type {
	case "Polygon":
		var coords [][][]float64
		if err := sonic.Unmarshal(g.Coordinates, &coords); err != nil {
			return nil, fmt.Errorf("polygon coordinates: %w", err)
		}
		return toPolygon(coords)
	case "MultiPolygon":
		var coords [][][][]float64
		if err := sonic.Unmarshal(g.Coordinates, &coords); err != nil {
			return nil, fmt.Errorf("multipolygon coordinates: %w", err)
		}
		mp := make(geom.MultiPolygon, 0, len(coords))
		for _, c := range coords {
			p, err := toPolygon(c)
			if err != nil {
				return nil, err
			}
			mp = append(mp, p)
		}
		return mp, nil
	default:
		return nil, fmt.Errorf("geometry type %q is not polygonal", g.Type)
	}
}

func toPolygon(rings [][][]float64) (geom.Polygon, error) {
	poly := make(geom.Polygon, 0, len(rings))
	for _, ring := range rings {
		path := make([]geom.Point, 0, len(ring))
		for _, pos := range ring {
			if len(pos) < 2 {
				return nil, fmt.Errorf("position with %d ordinates", len(pos))
			}
			path = append(path, geom.Point{X: pos[0], Y: pos[1]})
		}
		poly = append(poly, path)
	}
	return poly, nil
}
