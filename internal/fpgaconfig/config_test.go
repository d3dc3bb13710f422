package fpgaconfig_test

import (
	"bytes"
	"testing"

	"github.com/fpgalign/fpgalign/internal/fpgaconfig"
	"github.com/fpgalign/fpgalign/internal/fpgaerr"
	"github.com/stretchr/testify/require"
)

func validBuildConfig() fpgaconfig.Config {
	c := fpgaconfig.DefaultConfig()
	c.InputPath = "bins.txt"
	c.OutputPath = "out/idx"
	return c
}

func TestValidateBuildRejectsKmerSizeOutOfRange(t *testing.T) {
	c := validBuildConfig()
	c.KmerSize = 0
	require.ErrorIs(t, c.ValidateBuild(), fpgaerr.InvalidConfig)

	c = validBuildConfig()
	c.KmerSize = 33
	require.ErrorIs(t, c.ValidateBuild(), fpgaerr.InvalidConfig)
}

func TestValidateBuildRejectsWindowSmallerThanKmer(t *testing.T) {
	c := validBuildConfig()
	c.KmerSize = 10
	c.WindowSize = 9
	require.ErrorIs(t, c.ValidateBuild(), fpgaerr.InvalidConfig)
}

func TestValidateBuildRejectsMissingPaths(t *testing.T) {
	c := validBuildConfig()
	c.InputPath = ""
	require.ErrorIs(t, c.ValidateBuild(), fpgaerr.InvalidConfig)

	c = validBuildConfig()
	c.OutputPath = ""
	require.ErrorIs(t, c.ValidateBuild(), fpgaerr.InvalidConfig)
}

func TestValidateBuildAcceptsDefaults(t *testing.T) {
	require.NoError(t, validBuildConfig().ValidateBuild())
}

func TestValidateSearchRejectsBadErrorsAndThreads(t *testing.T) {
	c := fpgaconfig.DefaultConfig()
	c.InputPath, c.QueryPath, c.OutputPath = "idx", "q.fasta", "out.sam"

	bad := c
	bad.Errors = 6
	require.ErrorIs(t, bad.ValidateSearch(), fpgaerr.InvalidConfig)

	bad = c
	bad.Threads = 0
	require.ErrorIs(t, bad.ValidateSearch(), fpgaerr.InvalidConfig)

	bad = c
	bad.QueueCapacity = 0
	require.ErrorIs(t, bad.ValidateSearch(), fpgaerr.InvalidConfig)

	require.NoError(t, c.ValidateSearch())
}

func TestMetaChecksumDetectsFieldChange(t *testing.T) {
	m := fpgaconfig.Meta{
		KmerSize:     20,
		WindowSize:   24,
		NumberOfBins: 2,
		RefIDs:       [][]string{{"chr1", "chr2"}, {"chr3"}},
	}
	sum := m.Checksum()

	changed := m
	changed.NumberOfBins = 3
	require.NotEqual(t, sum, changed.Checksum())

	require.NoError(t, m.Verify(sum))
	require.Error(t, changed.Verify(sum))
}

func TestMetaStoreLoadRoundTrips(t *testing.T) {
	m := fpgaconfig.Meta{
		KmerSize:     18,
		WindowSize:   25,
		NumberOfBins: 2,
		RefIDs:       [][]string{{"chr1"}, {"chr2", "chr3"}},
	}

	var buf bytes.Buffer
	require.NoError(t, fpgaconfig.StoreMeta(&buf, m))

	got, err := fpgaconfig.LoadMeta(&buf)
	require.NoError(t, err)
	require.Equal(t, m, got)
}

func TestMetaLoadRejectsCorruptedChecksum(t *testing.T) {
	m := fpgaconfig.Meta{KmerSize: 16, WindowSize: 16, NumberOfBins: 1, RefIDs: [][]string{{"chr1"}}}

	var buf bytes.Buffer
	require.NoError(t, fpgaconfig.StoreMeta(&buf, m))

	raw := buf.Bytes()
	raw[0] ^= 0xFF // corrupt kmer_size after the checksum was computed over it

	_, err := fpgaconfig.LoadMeta(bytes.NewReader(raw))
	require.ErrorIs(t, err, fpgaerr.ConsistencyError)
}
