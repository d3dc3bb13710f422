package threshold_test

import (
	"testing"

	"github.com/fpgalign/fpgalign/internal/threshold"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetIsMonotoneNonDecreasingInHashCount(t *testing.T) {
	params, err := threshold.NewParams(20, 24, 150, 1)
	require.NoError(t, err)
	o := threshold.New(params)

	prev := -1
	for h := 0; h <= 200; h++ {
		got := o.Get(h)
		assert.GreaterOrEqual(t, got, prev, "h=%d", h)
		assert.GreaterOrEqual(t, got, 0)
		prev = got
	}
}

func TestGetNeverExceedsObservedHashCount(t *testing.T) {
	params, err := threshold.NewParams(20, 24, 150, 0)
	require.NoError(t, err)
	o := threshold.New(params)
	for h := 0; h <= 50; h++ {
		assert.LessOrEqual(t, o.Get(h), h)
	}
}

func TestGetClampsToZeroWhenErrorsDominate(t *testing.T) {
	params, err := threshold.NewParams(20, 24, 50, 5)
	require.NoError(t, err)
	o := threshold.New(params)
	assert.Equal(t, 0, o.Get(100))
}

func TestGetZeroErrorsKeepsFullSharedCount(t *testing.T) {
	params, err := threshold.NewParams(20, 24, 100, 0)
	require.NoError(t, err)
	o := threshold.New(params)
	// No error budget, no destroyed minimizers: threshold tracks the
	// observed count exactly (capped by the theoretical window count).
	assert.Equal(t, 10, o.Get(10))
}

func TestNewParamsValidation(t *testing.T) {
	_, err := threshold.NewParams(0, 10, 100, 1)
	assert.Error(t, err)
	_, err = threshold.NewParams(33, 40, 100, 1)
	assert.Error(t, err)
	_, err = threshold.NewParams(10, 5, 100, 1)
	assert.Error(t, err)
	_, err = threshold.NewParams(10, 20, -1, 1)
	assert.Error(t, err)
	_, err = threshold.NewParams(10, 20, 100, 6)
	assert.Error(t, err)
	_, err = threshold.NewParams(10, 20, 100, -1)
	assert.Error(t, err)
}
