package search_test

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/biogo/hts/sam"
	"github.com/fpgalign/fpgalign/internal/build"
	"github.com/fpgalign/fpgalign/internal/fpgaconfig"
	"github.com/fpgalign/fpgalign/internal/search"
	"github.com/stretchr/testify/require"
)

// TestRunEndToEndAfterBuild exercises a full build-then-search round trip
// against the spec's scenario #1: a single bin, errors=0, query a prefix of
// the reference.
func TestRunEndToEndAfterBuild(t *testing.T) {
	dir := t.TempDir()

	refPath := filepath.Join(dir, "ref.fasta")
	require.NoError(t, os.WriteFile(refPath, []byte(">chr1\nACGTACGTACGT\n"), 0o644))

	inputPath := filepath.Join(dir, "bins.txt")
	require.NoError(t, os.WriteFile(inputPath, []byte(refPath+"\n"), 0o644))

	outPrefix := filepath.Join(dir, "idx")
	buildCfg := fpgaconfig.DefaultConfig()
	buildCfg.InputPath = inputPath
	buildCfg.OutputPath = outPrefix
	buildCfg.KmerSize = 3
	buildCfg.WindowSize = 3

	var stderr bytes.Buffer
	require.NoError(t, build.Run(buildCfg, &stderr))

	queryPath := filepath.Join(dir, "query.fasta")
	require.NoError(t, os.WriteFile(queryPath, []byte(">q0\nACGT\n"), 0o644))

	samPath := filepath.Join(dir, "out.sam")
	searchCfg := fpgaconfig.DefaultConfig()
	searchCfg.InputPath = outPrefix
	searchCfg.QueryPath = queryPath
	searchCfg.OutputPath = samPath
	searchCfg.Errors = 0
	searchCfg.Threads = 2
	searchCfg.QueueCapacity = 4

	require.NoError(t, search.Run(searchCfg))

	samFile, err := os.Open(samPath)
	require.NoError(t, err)
	defer samFile.Close()

	r, err := sam.NewReader(samFile)
	require.NoError(t, err)

	var records []*sam.Record
	for {
		rec, err := r.Read()
		if rec == nil {
			require.ErrorIs(t, err, io.EOF)
			break
		}
		require.NoError(t, err)
		records = append(records, rec)
	}

	require.NotEmpty(t, records)
	for _, rec := range records {
		require.Equal(t, "q0", rec.Name)
		require.Equal(t, "chr1", rec.Ref.Name())
		require.EqualValues(t, 60, rec.MapQ)
	}
}

func TestRunRejectsMissingMeta(t *testing.T) {
	dir := t.TempDir()
	cfg := fpgaconfig.DefaultConfig()
	cfg.InputPath = filepath.Join(dir, "nonexistent")
	cfg.QueryPath = filepath.Join(dir, "q.fasta")
	cfg.OutputPath = filepath.Join(dir, "out.sam")

	require.Error(t, search.Run(cfg))
}
