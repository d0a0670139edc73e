package surrogate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/bayesopt/internal/kernel"
)

func TestRelearnLengthScaleImprovesLikelihood(t *testing.T) {
	k, err := kernel.New(kernel.Config{Kind: kernel.Matern5, LengthScale: 0.02})
	require.NoError(t, err)
	m, err := New(1, Options{Kernel: k, Prior: DefaultPrior(), Noise: 1e-4, Normalize: true})
	require.NoError(t, err)

	for i := 0; i < 15; i++ {
		x := float64(i) / 14
		require.NoError(t, m.AddObservation([]float64{x}, math.Sin(3*x)))
	}

	before, err := m.NegLogLikelihood()
	require.NoError(t, err)

	l, err := m.RelearnLengthScale(0.01, 2, 60)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, l, 0.01)
	assert.LessOrEqual(t, l, 2.0)
	assert.Equal(t, l, m.Kernel().LengthScale())

	after, err := m.NegLogLikelihood()
	require.NoError(t, err)
	assert.Less(t, after, before)
	assert.Greater(t, l, 0.02)
}

func TestRelearnLengthScaleValidatesRange(t *testing.T) {
	m := newModel(t, 1, 1e-4, true)
	require.NoError(t, m.AddObservation([]float64{0.5}, 1))

	_, err := m.RelearnLengthScale(0, 1, 10)
	assert.ErrorIs(t, err, ErrInvalidHyperparameter)
	_, err = m.RelearnLengthScale(1, 0.5, 10)
	assert.ErrorIs(t, err, ErrInvalidHyperparameter)

	empty := newModel(t, 1, 1e-4, true)
	_, err = empty.RelearnLengthScale(0.1, 1, 10)
	assert.ErrorIs(t, err, ErrNoObservations)
}
