package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultHolder(t *testing.T) {
	require.Nil(t, Default())

	c1, _, _ := newTestConnection(t)
	SetDefault(c1)
	assert.Same(t, c1, Default())
	SetDefault(c1) // idempotent, must not shut the connection down
	require.NoError(t, c1.Open())

	c2, _, _ := newTestConnection(t)
	SetDefault(c2)
	assert.Same(t, c2, Default())
	// the replaced connection is torn down
	assert.ErrorIs(t, c1.Open(), ErrShutdown)

	SetDefault(nil)
	assert.Nil(t, Default())
	assert.ErrorIs(t, c2.Open(), ErrShutdown)
}
