package cmd_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fpgalign/fpgalign/cmd/fpgalign/cmd"
	"github.com/stretchr/testify/require"
)

func TestRunReturnsMinusOneOnNoArgs(t *testing.T) {
	require.Equal(t, -1, cmd.Run(nil))
}

func TestRunReturnsMinusOneOnUnknownSubcommand(t *testing.T) {
	require.Equal(t, -1, cmd.Run([]string{"frobnicate"}))
}

func TestRunReturnsMinusOneOnMissingRequiredFlags(t *testing.T) {
	require.Equal(t, -1, cmd.Run([]string{"build"}))
	require.Equal(t, -1, cmd.Run([]string{"search"}))
}

func TestRunBuildThenSearchEndToEnd(t *testing.T) {
	dir := t.TempDir()
	refPath := filepath.Join(dir, "ref.fasta")
	require.NoError(t, os.WriteFile(refPath, []byte(">chr1\nACGTACGTACGT\n"), 0o644))

	inputPath := filepath.Join(dir, "bins.txt")
	require.NoError(t, os.WriteFile(inputPath, []byte(refPath+"\n"), 0o644))

	outPrefix := filepath.Join(dir, "idx")
	code := cmd.Run([]string{
		"build",
		"-input", inputPath,
		"-output", outPrefix,
		"-kmer", "3",
		"-window", "3",
	})
	require.Equal(t, 0, code)

	queryPath := filepath.Join(dir, "query.fasta")
	require.NoError(t, os.WriteFile(queryPath, []byte(">q0\nACGT\n"), 0o644))

	samPath := filepath.Join(dir, "out.sam")
	code = cmd.Run([]string{
		"search",
		"-input", outPrefix,
		"-query", queryPath,
		"-output", samPath,
		"-errors", "0",
	})
	require.Equal(t, 0, code)

	info, err := os.Stat(samPath)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}
