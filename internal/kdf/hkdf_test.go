package kdf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveIsDeterministic(t *testing.T) {
	ikm := []byte("shared-secret-material")

	out1, err := SessionWriteKey.DeriveWith(ikm)
	require.NoError(t, err)
	out2, err := SessionWriteKey.DeriveWith(ikm)
	require.NoError(t, err)

	assert.Equal(t, out1, out2)
	assert.Len(t, out1, 32)
}

func TestDistinctLabelsProduceDistinctKeys(t *testing.T) {
	ikm := []byte("shared-secret-material")

	write, err := SessionWriteKey.DeriveWith(ikm)
	require.NoError(t, err)
	read, err := SessionReadKey.DeriveWith(ikm)
	require.NoError(t, err)

	assert.NotEqual(t, write, read)
}

func TestDistinctIKMProducesDistinctOutput(t *testing.T) {
	a, err := PairSetupEncrypt.DeriveWith([]byte("premaster-a"))
	require.NoError(t, err)
	b, err := PairSetupEncrypt.DeriveWith([]byte("premaster-b"))
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}
