package store

import (
	"context"
	"fmt"
)

// Collection is a feature collection registered for reprojection.
// A nil SRID means the coordinate system is undefined.
type Collection struct {
	Name string `json:"name"`
	SRID *int   `json:"srid"`
}

// Point is one feature of a collection in its source coordinates.
type Point struct {
	ObjectID int64
	X        float64
	Y        float64
}

// ProjectedSuffix is appended to a collection name to form its output table.
const ProjectedSuffix = "_projected"

// RegisterCollection adds or updates a feature collection.
func (c conn) RegisterCollection(ctx context.Context, name string, srid *int) error {
	if _, err := quoteIdent(name); err != nil {
		return fmt.Errorf("register collection: %w", err)
	}
	var arg any
	if srid != nil {
		arg = *srid
	}
	_, err := c.exec(ctx, `
		INSERT INTO `+TableCollections+` (name, srid) VALUES (?, ?)
		ON CONFLICT (name) DO UPDATE SET srid = excluded.srid`, name, arg)
	if err != nil {
		return fmt.Errorf("register collection %s: %w", name, err)
	}
	return nil
}

// FeatureCollections lists the registered collections by name.
func (c conn) FeatureCollections(ctx context.Context) ([]Collection, error) {
	rows, err := c.query(ctx, "SELECT name, srid FROM "+TableCollections+" ORDER BY name ASC")
	if err != nil {
		return nil, fmt.Errorf("query collections: %w", err)
	}
	defer rows.Close()

	var out []Collection
	for rows.Next() {
		var (
			name string
			srid *int64
		)
		if err := rows.Scan(&name, &srid); err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		col := Collection{Name: name}
		if srid != nil {
			v := int(*srid)
			col.SRID = &v
		}
		out = append(out, col)
	}
	return out, rows.Err()
}

// Points reads the features of a collection. The table must carry objectid,
// longitude (x) and latitude (y) columns.
func (c conn) Points(ctx context.Context, table string) ([]Point, error) {
	quoted, err := quoteIdent(table)
	if err != nil {
		return nil, fmt.Errorf("read points: %w", err)
	}
	rows, err := c.query(ctx, "SELECT objectid, longitude, latitude FROM "+quoted+" ORDER BY objectid ASC")
	if err != nil {
		return nil, fmt.Errorf("read points from %s: %w", table, err)
	}
	defer rows.Close()

	var out []Point
	for rows.Next() {
		var p Point
		if err := rows.Scan(&p.ObjectID, &p.X, &p.Y); err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ReplaceProjected rewrites <name>_projected with the given points in its
// own transaction and returns the output table name.
func (s *Store) ReplaceProjected(ctx context.Context, name string, srid int, pts []Point) (string, error) {
	table := name + ProjectedSuffix
	quoted, err := quoteIdent(table)
	if err != nil {
		return "", fmt.Errorf("replace projected: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	c := conn{q: tx, dialect: s.dialect}
	if _, err := c.exec(ctx, "DROP TABLE IF EXISTS "+quoted); err != nil {
		return "", fmt.Errorf("drop %s: %w", table, err)
	}
	if _, err := c.exec(ctx, "CREATE TABLE "+quoted+` (
		objectid BIGINT PRIMARY KEY,
		x        DOUBLE PRECISION NOT NULL,
		y        DOUBLE PRECISION NOT NULL,
		srid     INTEGER NOT NULL
	)`); err != nil {
		return "", fmt.Errorf("create %s: %w", table, err)
	}
	for _, p := range pts {
		if _, err := c.exec(ctx, "INSERT INTO "+quoted+" (objectid, x, y, srid) VALUES (?, ?, ?, ?)",
			p.ObjectID, p.X, p.Y, srid); err != nil {
			return "", fmt.Errorf("insert into %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit transaction: %w", err)
	}
	return table, nil
}

// ProjectedPoints reads back a projected table.
func (c conn) ProjectedPoints(ctx context.Context, name string) ([]Point, error) {
	quoted, err := quoteIdent(name + ProjectedSuffix)
	if err != nil {
		return nil, err
	}
	rows, err := c.query(ctx, "SELECT objectid, x, y FROM "+quoted+" ORDER BY objectid ASC")
	if err != nil {
		return nil, fmt.Errorf("read %s%s: %w", name, ProjectedSuffix, err)
	}
	defer rows.Close()

	var out []Point
	for rows.Next() {
		var p Point
		if err := rows.Scan(&p.ObjectID, &p.X, &p.Y); err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
