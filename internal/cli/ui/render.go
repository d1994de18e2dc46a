package ui

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/lipgloss/tree"
	"github.com/couchcryptid/climate-series-service/internal/adapter/netcdf"
	"github.com/couchcryptid/climate-series-service/internal/domain"
)

const missing = "n/a"

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(Styles.Border).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return Styles.Header
			}
			return Styles.Cell
		}).
		Headers(headers...)
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

// RenderRows renders a result table with one column per band. Bands are the
// sorted union over all rows.
func RenderRows(rows []domain.StatRow) string {
	if len(rows) == 0 {
		return Styles.Muted.Render("No rows")
	}
	var bands []domain.Band
	for _, row := range rows {
		for b := range row.Values {
			if !slices.Contains(bands, b) {
				bands = append(bands, b)
			}
		}
	}
	slices.Sort(bands)

	headers := []string{"date", "feature"}
	for _, b := range bands {
		headers = append(headers, string(b))
	}
	t := newTable(headers...)
	for _, row := range rows {
		cells := []string{row.Date.Format(time.DateOnly), row.FeatureID}
		for _, b := range bands {
			if v, ok := row.Value(b); ok {
				cells = append(cells, formatValue(v))
			} else {
				cells = append(cells, missing)
			}
		}
		t.Row(cells...)
	}
	return t.String()
}

// RenderSummary renders per-band statistics and the excess and deficit indicators.
func RenderSummary(s *domain.Summary) string {
	if s == nil {
		return ""
	}
	t := newTable("band", "min", "mean", "max", "count")
	for _, b := range s.Bands {
		t.Row(string(b.Band), formatValue(b.Min), formatValue(b.Mean), formatValue(b.Max), strconv.Itoa(b.Count))
	}

	var lines []string
	for _, ind := range []*domain.Indicator{s.Excess, s.Deficit} {
		if ind == nil {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s %s %s on %s (%s, mean %s)",
			Styles.Bold.Render(ind.Label),
			ind.Band,
			Styles.Value.Render(formatValue(ind.Value)),
			ind.Date.Format(time.DateOnly),
			ind.FeatureID,
			formatValue(ind.Reference),
		))
	}
	if len(lines) == 0 {
		return t.String()
	}
	return t.String() + "\n" + Styles.Summary.Render(strings.Join(lines, "\n"))
}

// RenderDrought renders the monthly drought buckets with their Palmer class.
func RenderDrought(d *domain.DroughtTable) string {
	if d == nil || len(d.Monthly) == 0 {
		return Styles.Muted.Render("No drought data")
	}
	t := newTable("month", "feature", string(d.Band), "samples", "class")
	for _, m := range d.Monthly {
		value := missing
		if v, ok := m.Value(d.Band); ok {
			value = formatValue(v)
		}
		t.Row(m.Period.String(), m.FeatureID, value, strconv.Itoa(m.Samples), strings.ReplaceAll(string(m.Class), "_", " "))
	}
	return t.String()
}

// RenderLandCover renders class areas in the order given.
func RenderLandCover(areas []domain.ClassArea) string {
	if len(areas) == 0 {
		return Styles.Muted.Render("No classified pixels")
	}
	t := newTable("class", "pixels", "hectares")
	for _, a := range areas {
		t.Row(strconv.Itoa(a.Class), strconv.Itoa(a.Pixels), strconv.FormatFloat(a.Hectares, 'f', 2, 64))
	}
	return t.String()
}

// RenderInspect renders a dataset directory as a tree of variables.
func RenderInspect(dir string, infos []netcdf.VariableInfo) string {
	root := tree.Root(Styles.Title.UnsetMarginTop().Render(dir))
	if len(infos) == 0 {
		root.Child(Styles.Muted.Render("no variable directories"))
		return root.String()
	}
	for _, info := range infos {
		label := string(info.Variable)
		if !info.Known {
			label += Styles.Muted.Render(" (unknown variable)")
		}
		node := tree.Root(Styles.Bold.Render(label))
		node.Child(fmt.Sprintf("files: %d", info.Files))
		node.Child(fmt.Sprintf("observations: %d", info.Observations))
		if info.Observations > 0 {
			node.Child(fmt.Sprintf("span: %s to %s", info.First.Format(time.DateOnly), info.Last.Format(time.DateOnly)))
		}
		if len(info.Bands) > 0 {
			names := make([]string, len(info.Bands))
			for i, b := range info.Bands {
				names[i] = string(b)
			}
			node.Child("bands: " + strings.Join(names, ", "))
		}
		if len(info.Properties) > 0 {
			node.Child("properties: " + strings.Join(info.Properties, ", "))
		}
		for _, s := range info.Specs {
			node.Child(fmt.Sprintf("grid: %dx%d at %gx%g deg from (%g, %g)", s.Cols, s.Rows, s.Dx, s.Dy, s.MinLon, s.MaxLat))
		}
		root.Child(node)
	}
	return root.String()
}
