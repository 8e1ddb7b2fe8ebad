package main

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/bioscope/internal/fetcher"
	"github.com/sells-group/bioscope/internal/geospatial"
	"github.com/sells-group/bioscope/internal/model"
)

var layersCmd = &cobra.Command{
	Use:   "layers",
	Short: "Manage the spatial risk layers",
}

var (
	loadLayer string
	loadFile  string
	loadBatch int
)

var layersLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Append rows from a CSV, TSV, or XLSX file to one layer table",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		kind, err := model.ParseLayerKind(loadLayer)
		if err != nil {
			return err
		}
		if !fetcher.Supported(loadFile) {
			return eris.Errorf("layers: unsupported file %s", loadFile)
		}

		env, err := initEnv(ctx, "ingest", envParts{store: true})
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := loadLayerFile(ctx, env.Store, kind, loadFile, loadBatch)
		if err != nil {
			return err
		}

		zap.L().Info("layer load complete",
			zap.Stringer("layer", kind),
			zap.String("file", loadFile),
			zap.Int64("rows", n),
		)
		fmt.Fprintf(cmd.OutOrStdout(), "loaded %d rows into %s\n", n, geospatial.TableName(kind))
		return nil
	},
}

// loadLayerFile streams path into l in batches of batch rows.
func loadLayerFile(ctx context.Context, l geospatial.Loader, kind model.LayerKind, path string, batch int) (int64, error) {
	if batch <= 0 {
		batch = 1000
	}

	var (
		total int64
		buf   = make([]geospatial.Row, 0, batch)
	)
	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		n, err := l.InsertRows(ctx, kind, buf)
		if err != nil {
			return err
		}
		total += n
		buf = buf[:0]
		return nil
	}

	err := fetcher.EachRecord(ctx, path, func(line int, rec fetcher.Record) error {
		row, err := layerRow(kind, rec)
		if err != nil {
			return eris.Wrapf(err, "layers: %s line %d", path, line)
		}
		buf = append(buf, row)
		if len(buf) >= batch {
			return flush()
		}
		return nil
	})
	if err != nil {
		return total, err
	}
	return total, flush()
}

// layerRow maps one file record onto a layer row. Point layers need a
// coordinate and accept a name and label; raster layers need a coordinate
// and accept a score and label.
func layerRow(kind model.LayerKind, rec fetcher.Record) (geospatial.Row, error) {
	lat, err := rec.Float("latitude", "lat", "y")
	if err != nil {
		return geospatial.Row{}, err
	}
	lon, err := rec.Float("longitude", "lon", "lng", "x")
	if err != nil {
		return geospatial.Row{}, err
	}
	if lat == nil || lon == nil {
		return geospatial.Row{}, eris.New("missing coordinate")
	}

	row := geospatial.Row{Coordinate: model.Coordinate{Latitude: *lat, Longitude: *lon}}
	if err := row.Coordinate.Validate(); err != nil {
		return geospatial.Row{}, err
	}

	if kind.IsPoint() {
		row.Name = rec.Get("common_name", "species_name", "scientific_name", "name")
		row.Label = rec.Get("threat_code", "threat_status", "status", "label")
		return row, nil
	}

	score, err := rec.Float("normalized_risk", "marine_hci", "score", "value")
	if err != nil {
		return geospatial.Row{}, err
	}
	row.Score = score
	row.Label = rec.Get("risk_level", "label")
	return row, nil
}

func init() {
	layersLoadCmd.Flags().StringVar(&loadLayer, "layer", "", "layer name, e.g. invasive_species or marine_hci")
	layersLoadCmd.Flags().StringVar(&loadFile, "file", "", "CSV, TSV, or XLSX file to load")
	layersLoadCmd.Flags().IntVar(&loadBatch, "batch-size", 1000, "rows per insert")
	_ = layersLoadCmd.MarkFlagRequired("layer")
	_ = layersLoadCmd.MarkFlagRequired("file")

	layersCmd.AddCommand(layersLoadCmd)
	rootCmd.AddCommand(layersCmd)
}
