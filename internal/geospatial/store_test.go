package geospatial

import (
	"context"
	"fmt"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/bioscope/internal/model"
)

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }

func TestRangeSQL(t *testing.T) {
	q := DefaultPolicies()[model.IUCNAssessment].Query(model.Coordinate{Latitude: 40, Longitude: -74}, 100)
	sql := rangeSQL(layerTables[model.IUCNAssessment], q, pgPlaceholder)
	assert.Equal(t,
		"SELECT latitude, longitude, species_name, threat_status FROM iucn_data "+
			"WHERE latitude BETWEEN $1 AND $2 AND longitude BETWEEN $3 AND $4 ORDER BY id LIMIT $5 OFFSET $6",
		sql)

	args := rangeArgs(q)
	require.Len(t, args, 6)
	assert.InDelta(t, 39.9, args[0].(float64), 1e-6)
	assert.InDelta(t, 40.1, args[1].(float64), 1e-6)
	assert.InDelta(t, -74.1, args[2].(float64), 1e-6)
	assert.InDelta(t, -73.9, args[3].(float64), 1e-6)
	assert.Equal(t, 50, args[4])
	assert.Equal(t, 100, args[5])
}

func TestRangeSQL_Raster(t *testing.T) {
	q := DefaultPolicies()[model.MarineHCI].Query(model.Coordinate{Latitude: 40, Longitude: -74}, 0)
	sql := rangeSQL(layerTables[model.MarineHCI], q, sqlitePlaceholder)
	assert.Equal(t, "SELECT y, x, marine_hci FROM marine_hci WHERE y BETWEEN ? AND ? AND x BETWEEN ? AND ? ORDER BY id", sql)

	args := rangeArgs(q)
	require.Len(t, args, 4)
	assert.InDelta(t, 39.5, args[0].(float64), 1e-6)
	assert.InDelta(t, 40.5, args[1].(float64), 1e-6)
}

func TestTableNameAndColumns(t *testing.T) {
	assert.Equal(t, "freshwater_risk", TableName(model.FreshwaterHCI))
	assert.Equal(t, []string{"y", "x", "normalized_risk", "risk_level"}, Columns(model.TerrestrialHCI))
	assert.Equal(t, []string{"latitude", "longitude", "common_name", "threat_code"}, Columns(model.InvasiveSpecies))

	_, err := tableFor(model.LayerKind(42))
	assert.Error(t, err)
}

func TestPostgresStore_RangeQuery_Point(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	q := DefaultPolicies()[model.InvasiveSpecies].Query(model.Coordinate{Latitude: 40.2, Longitude: -74.5}, 0)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT latitude, longitude, common_name, threat_code FROM invasive_species WHERE")).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"latitude", "longitude", "common_name", "threat_code"}).
			AddRow(40.21, -74.49, strPtr("Kudzu"), strPtr("high")).
			AddRow(40.15, -74.55, strPtr("Japanese Knotweed"), strPtr("low")))

	rows, err := store.RangeQuery(context.Background(), model.InvasiveSpecies, q)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Kudzu", rows[0].Name)
	assert.Equal(t, "high", rows[0].Label)
	assert.InDelta(t, 40.21, rows[0].Coordinate.Latitude, 1e-9)
	assert.Nil(t, rows[0].Score)
	assert.Equal(t, "Japanese Knotweed", rows[1].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RangeQuery_Paged(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	q := DefaultPolicies()[model.IUCNAssessment].Query(model.Coordinate{Latitude: 40, Longitude: -74}, 50)

	mock.ExpectQuery("FROM iucn_data .+ ORDER BY id LIMIT \\$5 OFFSET \\$6").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), 50, 50).
		WillReturnRows(pgxmock.NewRows([]string{"latitude", "longitude", "species_name", "threat_status"}).
			AddRow(40.01, -74.02, strPtr("Bog Turtle"), strPtr("Critically Endangered")))

	rows, err := store.RangeQuery(context.Background(), model.IUCNAssessment, q)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Critically Endangered", rows[0].Label)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RangeQuery_Raster(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	q := DefaultPolicies()[model.FreshwaterHCI].Query(model.Coordinate{Latitude: 40, Longitude: -74}, 0)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT y, x, normalized_risk, risk_level FROM freshwater_risk WHERE y BETWEEN $1")).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"y", "x", "normalized_risk", "risk_level"}).
			AddRow(40.3, -74.05, floatPtr(2.4), strPtr("high")))

	rows, err := store.RangeQuery(context.Background(), model.FreshwaterHCI, q)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].Score)
	assert.InDelta(t, 2.4, *rows[0].Score, 1e-9)
	assert.InDelta(t, 40.3, rows[0].Coordinate.Latitude, 1e-9)
	assert.InDelta(t, -74.05, rows[0].Coordinate.Longitude, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RangeQuery_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	mock.ExpectQuery("FROM marine_hci").WillReturnError(fmt.Errorf("relation \"marine_hci\" does not exist"))

	_, err = store.RangeQuery(context.Background(), model.MarineHCI, model.RangeQuery{LatTolerance: 0.5, LonTolerance: 0.1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "geo: query marine_hci")
}

func TestPostgresStore_InsertRows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	mock.ExpectCopyFrom(pgx.Identifier{"marine_hci"}, []string{"y", "x", "marine_hci"}).
		WillReturnResult(2)

	n, err := store.InsertRows(context.Background(), model.MarineHCI, []Row{
		{Coordinate: model.Coordinate{Latitude: 40, Longitude: -74}, Score: floatPtr(0.8)},
		{Coordinate: model.Coordinate{Latitude: 40.1, Longitude: -74}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertArgs(t *testing.T) {
	r := Row{Coordinate: model.Coordinate{Latitude: 1, Longitude: 2}, Name: "n", Label: "l", Score: floatPtr(3)}
	assert.Equal(t, []any{1.0, 2.0, "n", "l"}, insertArgs(model.IUCNAssessment, r))
	assert.Equal(t, []any{1.0, 2.0, r.Score}, insertArgs(model.MarineHCI, r))
	assert.Equal(t, []any{1.0, 2.0, r.Score, "l"}, insertArgs(model.TerrestrialHCI, r))
	assert.Equal(t, "INSERT INTO marine_hci (y, x, marine_hci) VALUES ($1, $2, $3)",
		insertSQL(layerTables[model.MarineHCI], pgPlaceholder))
}
