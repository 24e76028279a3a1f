// Package project reprojects committed feature collections into a target
// coordinate reference system after a successful batch.
//
// Each collection is processed independently. A collection without a
// defined coordinate system is skipped; a failing collection never affects
// the others, nor the batch that preceded it.
package project

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/storesync/internal/delta"
	"github.com/roach88/storesync/internal/store"
)

// Supported spatial reference identifiers.
const (
	// SRIDWGS84 is geographic WGS 1984 (degrees).
	SRIDWGS84 = 4326

	// SRIDWebMercator is WGS 1984 Web Mercator (auxiliary sphere), metres.
	SRIDWebMercator = 3857
)

// DefaultTarget is the projection applied when none is configured.
const DefaultTarget = SRIDWebMercator

const (
	earthRadius = 6378137.0
	// maxLatitude is where Web Mercator y reaches the square extent.
	maxLatitude = 85.051128779806592
)

// ParseSRID accepts "EPSG:3857", "3857" or a well-known alias.
func ParseSRID(s string) (int, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "web_mercator", "webmercator", "web-mercator":
		return SRIDWebMercator, nil
	case "wgs84", "wgs_84":
		return SRIDWGS84, nil
	}
	v = strings.TrimPrefix(v, "epsg:")
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid spatial reference %q", s)
	}
	if n != SRIDWGS84 && n != SRIDWebMercator {
		return 0, fmt.Errorf("unsupported spatial reference EPSG:%d", n)
	}
	return n, nil
}

// Source is the storage a Projector reads collections from and writes
// projected tables to.
type Source interface {
	FeatureCollections(ctx context.Context) ([]store.Collection, error)
	Points(ctx context.Context, table string) ([]store.Point, error)
	ReplaceProjected(ctx context.Context, name string, srid int, pts []store.Point) (string, error)
}

// Summary describes one reprojected collection.
type Summary struct {
	Collection string `json:"collection"`
	Table      string `json:"table"`
	SourceSRID int    `json:"source_srid"`
	TargetSRID int    `json:"target_srid"`
	Features   int    `json:"features"`
}

// Projector rewrites each eligible collection into <name>_projected.
type Projector struct {
	target int
	only   []string
	logger *slog.Logger
}

// New creates a Projector. If only is non-empty, collections not named in
// it are ignored.
func New(target int, only []string, logger *slog.Logger) *Projector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Projector{target: target, only: only, logger: logger}
}

// Target returns the target SRID.
func (p *Projector) Target() int {
	return p.target
}

// Project processes every registered collection. Listing failures yield a
// single Fatal result.
func (p *Projector) Project(ctx context.Context, src Source) []delta.Result[Summary] {
	collections, err := src.FeatureCollections(ctx)
	if err != nil {
		return []delta.Result[Summary]{delta.Fatal[Summary](fmt.Errorf("list feature collections: %w", err))}
	}

	var results []delta.Result[Summary]
	for _, c := range collections {
		if len(p.only) > 0 && !slices.Contains(p.only, c.Name) {
			continue
		}
		results = append(results, p.projectOne(ctx, src, c))
	}
	return results
}

func (p *Projector) projectOne(ctx context.Context, src Source, c store.Collection) delta.Result[Summary] {
	if c.SRID == nil {
		p.logger.Info("skipping collection without coordinate system", "collection", c.Name)
		return delta.Skip[Summary](fmt.Sprintf("%s has no coordinate system defined", c.Name))
	}

	transform, err := transformFor(*c.SRID, p.target)
	if err != nil {
		return delta.Fatal[Summary](fmt.Errorf("%s: %w", c.Name, err))
	}

	pts, err := src.Points(ctx, c.Name)
	if err != nil {
		return delta.Fatal[Summary](fmt.Errorf("%s: %w", c.Name, err))
	}

	out := make([]store.Point, len(pts))
	for i, pt := range pts {
		x, y := transform(pt.X, pt.Y)
		out[i] = store.Point{ObjectID: pt.ObjectID, X: x, Y: y}
	}

	table, err := src.ReplaceProjected(ctx, c.Name, p.target, out)
	if err != nil {
		return delta.Fatal[Summary](fmt.Errorf("%s: %w", c.Name, err))
	}

	p.logger.Info("projected collection", "collection", c.Name, "table", table,
		"from", *c.SRID, "to", p.target, "features", len(out))
	return delta.Ok(Summary{
		Collection: c.Name,
		Table:      table,
		SourceSRID: *c.SRID,
		TargetSRID: p.target,
		Features:   len(out),
	})
}

type transformFunc func(x, y float64) (float64, float64)

func transformFor(from, to int) (transformFunc, error) {
	switch {
	case from == to:
		return func(x, y float64) (float64, float64) { return x, y }, nil
	case from == SRIDWGS84 && to == SRIDWebMercator:
		return ToWebMercator, nil
	case from == SRIDWebMercator && to == SRIDWGS84:
		return FromWebMercator, nil
	default:
		return nil, fmt.Errorf("no transformation from EPSG:%d to EPSG:%d", from, to)
	}
}

// ToWebMercator converts longitude/latitude degrees to Web Mercator metres.
// Latitudes beyond the projection's extent are clamped.
func ToWebMercator(lon, lat float64) (float64, float64) {
	lat = math.Max(-maxLatitude, math.Min(maxLatitude, lat))
	x := earthRadius * lon * math.Pi / 180
	y := earthRadius * math.Log(math.Tan(math.Pi/4+lat*math.Pi/360))
	return x, y
}

// FromWebMercator converts Web Mercator metres back to longitude/latitude.
func FromWebMercator(x, y float64) (float64, float64) {
	lon := x / earthRadius * 180 / math.Pi
	lat := (2*math.Atan(math.Exp(y/earthRadius)) - math.Pi/2) * 180 / math.Pi
	return lon, lat
}
