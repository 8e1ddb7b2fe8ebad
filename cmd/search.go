package main

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/bioscope/internal/lookup"
	"github.com/sells-group/bioscope/internal/model"
)

var (
	searchLat    float64
	searchLon    float64
	searchOffset int
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "List every risk around a location with its mitigation",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "search", envParts{service: true})
		if err != nil {
			return err
		}
		defer env.Close()

		center := model.Coordinate{Latitude: searchLat, Longitude: searchLon}
		resp, err := env.Service.AggregateAndEnrich(ctx, center, lookup.Options{Offset: searchOffset})
		if err != nil {
			return eris.Wrap(err, "search")
		}

		return writeJSON(cmd, resp)
	},
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	searchCmd.Flags().Float64Var(&searchLat, "lat", 0, "latitude in decimal degrees")
	searchCmd.Flags().Float64Var(&searchLon, "lon", 0, "longitude in decimal degrees")
	searchCmd.Flags().IntVar(&searchOffset, "offset", 0, "IUCN result page offset")
	_ = searchCmd.MarkFlagRequired("lat")
	_ = searchCmd.MarkFlagRequired("lon")
	rootCmd.AddCommand(searchCmd)
}
