package geospatial

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/bioscope/internal/model"
)

// Row is one record read from a layer table. Point layers carry Name and
// Label. Raster layers carry Score and may carry a Label.
type Row struct {
	Coordinate model.Coordinate
	Name       string
	Label      string
	Score      *float64
}

// Store executes range queries against layer tables.
type Store interface {
	// RangeQuery returns rows of kind inside q's box, in store order.
	RangeQuery(ctx context.Context, kind model.LayerKind, q model.RangeQuery) ([]Row, error)
}

// Loader appends rows to a layer table.
type Loader interface {
	InsertRows(ctx context.Context, kind model.LayerKind, rows []Row) (int64, error)
}

// scanner is satisfied by both pgx.Rows and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// layerTable is the physical shape of a layer. Every identifier that ends
// up in SQL comes from this table, never from a caller.
type layerTable struct {
	Table  string
	LatCol string
	LonCol string
	Extra  []string
	scan   func(s scanner) (Row, error)
}

var layerTables = map[model.LayerKind]layerTable{
	model.InvasiveSpecies: {
		Table: "invasive_species", LatCol: "latitude", LonCol: "longitude",
		Extra: []string{"common_name", "threat_code"},
		scan:  scanPoint,
	},
	model.IUCNAssessment: {
		Table: "iucn_data", LatCol: "latitude", LonCol: "longitude",
		Extra: []string{"species_name", "threat_status"},
		scan:  scanPoint,
	},
	model.FreshwaterHCI: {
		Table: "freshwater_risk", LatCol: "y", LonCol: "x",
		Extra: []string{"normalized_risk", "risk_level"},
		scan:  scanScoreLabel,
	},
	model.MarineHCI: {
		Table: "marine_hci", LatCol: "y", LonCol: "x",
		Extra: []string{"marine_hci"},
		scan:  scanScore,
	},
	model.TerrestrialHCI: {
		Table: "terrestrial_risk", LatCol: "y", LonCol: "x",
		Extra: []string{"normalized_risk", "risk_level"},
		scan:  scanScoreLabel,
	},
}

func tableFor(kind model.LayerKind) (layerTable, error) {
	t, ok := layerTables[kind]
	if !ok {
		return layerTable{}, eris.Errorf("geo: no table for layer %d", int(kind))
	}
	return t, nil
}

// TableName returns the physical table backing kind.
func TableName(kind model.LayerKind) string {
	return layerTables[kind].Table
}

// rangeSQL renders the range query for t. placeholder formats the n-th
// (1-based) bind parameter.
func rangeSQL(t layerTable, q model.RangeQuery, placeholder func(n int) string) string {
	cols := append([]string{t.LatCol, t.LonCol}, t.Extra...)

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s WHERE %s BETWEEN %s AND %s AND %s BETWEEN %s AND %s",
		strings.Join(cols, ", "), t.Table,
		t.LatCol, placeholder(1), placeholder(2),
		t.LonCol, placeholder(3), placeholder(4),
	)
	b.WriteString(" ORDER BY id")
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %s OFFSET %s", placeholder(5), placeholder(6))
	}
	return b.String()
}

// rangeArgs returns the bind parameters matching rangeSQL.
func rangeArgs(q model.RangeQuery) []any {
	b := Bounds(q)
	args := []any{b.Min(1), b.Max(1), b.Min(0), b.Max(0)}
	if q.Limit > 0 {
		args = append(args, q.Limit, q.Offset)
	}
	return args
}

func scanPoint(s scanner) (Row, error) {
	var r Row
	var name, label *string
	if err := s.Scan(&r.Coordinate.Latitude, &r.Coordinate.Longitude, &name, &label); err != nil {
		return Row{}, err
	}
	r.Name = deref(name)
	r.Label = deref(label)
	return r, nil
}

func scanScoreLabel(s scanner) (Row, error) {
	var r Row
	var label *string
	if err := s.Scan(&r.Coordinate.Latitude, &r.Coordinate.Longitude, &r.Score, &label); err != nil {
		return Row{}, err
	}
	r.Label = deref(label)
	return r, nil
}

func scanScore(s scanner) (Row, error) {
	var r Row
	if err := s.Scan(&r.Coordinate.Latitude, &r.Coordinate.Longitude, &r.Score); err != nil {
		return Row{}, err
	}
	return r, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Columns returns the columns written for kind, in insertArgs order.
func Columns(kind model.LayerKind) []string {
	t := layerTables[kind]
	return append([]string{t.LatCol, t.LonCol}, t.Extra...)
}

func insertSQL(t layerTable, placeholder func(n int) string) string {
	cols := append([]string{t.LatCol, t.LonCol}, t.Extra...)
	ph := make([]string, len(cols))
	for i := range cols {
		ph[i] = placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.Table, strings.Join(cols, ", "), strings.Join(ph, ", "))
}

// insertArgs flattens r into the column order of kind.
func insertArgs(kind model.LayerKind, r Row) []any {
	args := []any{r.Coordinate.Latitude, r.Coordinate.Longitude}
	switch kind {
	case model.InvasiveSpecies, model.IUCNAssessment:
		args = append(args, r.Name, r.Label)
	case model.MarineHCI:
		args = append(args, r.Score)
	default:
		args = append(args, r.Score, r.Label)
	}
	return args
}
