package netcdf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/couchcryptid/climate-series-service/internal/domain"
)

// VariableInfo summarizes the files of one variable directory.
type VariableInfo struct {
	Variable     domain.Variable   `json:"variable"`
	Known        bool              `json:"known"`
	Files        int               `json:"files"`
	Observations int               `json:"observations"`
	First        time.Time         `json:"first"`
	Last         time.Time         `json:"last"`
	Bands        []domain.Band     `json:"bands"`
	Properties   []string          `json:"properties,omitempty"`
	Specs        []domain.GridSpec `json:"specs"`
}

// Inspect reads the headers of every file below the provider root and
// summarizes them per variable directory.
func (p *Provider) Inspect(ctx context.Context) ([]VariableInfo, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, err
	}

	var out []VariableInfo
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v := domain.Variable(e.Name())
		files, err := p.files(v)
		if err != nil {
			return nil, err
		}
		_, lookupErr := domain.LookupSchema(v)
		info := VariableInfo{Variable: v, Known: lookupErr == nil, Files: len(files)}

		for _, path := range files {
			h, err := p.header(path)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
			}
			info.Observations += len(h.times)
			for _, ts := range h.times {
				if info.First.IsZero() || ts.Before(info.First) {
					info.First = ts
				}
				if ts.After(info.Last) {
					info.Last = ts
				}
			}
			for _, b := range h.bands {
				if !slices.Contains(info.Bands, b) {
					info.Bands = append(info.Bands, b)
				}
			}
			for name := range h.props {
				if !slices.Contains(info.Properties, name) {
					info.Properties = append(info.Properties, name)
				}
			}
			if !slices.Contains(info.Specs, h.spec) {
				info.Specs = append(info.Specs, h.spec)
			}
		}
		slices.Sort(info.Bands)
		slices.Sort(info.Properties)
		out = append(out, info)
	}
	return out, nil
}
