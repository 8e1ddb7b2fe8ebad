package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"serve", "search", "mitigate", "corpus", "layers"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "bioscope", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestSearchCommand_Flags(t *testing.T) {
	for _, name := range []string{"lat", "lon", "offset"} {
		assert.NotNil(t, searchCmd.Flags().Lookup(name), "search should have --%s flag", name)
	}
	assert.Equal(t, "0", searchCmd.Flags().Lookup("offset").DefValue)
}

func TestMitigateCommand_Flags(t *testing.T) {
	for _, name := range []string{"risk-type", "threat-level", "description"} {
		assert.NotNil(t, mitigateCmd.Flags().Lookup(name), "mitigate should have --%s flag", name)
	}
	assert.Equal(t, "low", mitigateCmd.Flags().Lookup("threat-level").DefValue)
}

func TestCorpusCommand_HasIngest(t *testing.T) {
	var names []string
	for _, c := range corpusCmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "ingest")

	flag := corpusIngestCmd.Flags().Lookup("batch-size")
	require.NotNil(t, flag)
	assert.Equal(t, "100", flag.DefValue)
}

func TestLayersCommand_HasLoad(t *testing.T) {
	var names []string
	for _, c := range layersCmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "load")

	for _, name := range []string{"layer", "file", "batch-size"} {
		assert.NotNil(t, layersLoadCmd.Flags().Lookup(name), "layers load should have --%s flag", name)
	}
}
