package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenForTestCreatesSchema(t *testing.T) {
	ctx := context.Background()
	db, err := OpenForTest(ctx)
	require.NoError(t, err)
	defer db.Close()

	// Every mapped table exists and is writable.
	sub := 1
	chain := &Chain{FullID: 7290027600007, SubchainID: &sub, Name: "שופרסל"}
	_, err = db.NewInsert().Model(chain).Exec(ctx)
	require.NoError(t, err)
	assert.NotZero(t, chain.ID)

	for _, model := range Models() {
		count, err := db.NewSelect().Model(model).Count(ctx)
		require.NoError(t, err)
		assert.LessOrEqual(t, count, 1)
	}
}

func TestOpenForTestIsolation(t *testing.T) {
	ctx := context.Background()
	a, err := OpenForTest(ctx)
	require.NoError(t, err)
	defer a.Close()
	b, err := OpenForTest(ctx)
	require.NoError(t, err)
	defer b.Close()

	sub := 0
	_, err = a.NewInsert().Model(&Chain{FullID: 1, SubchainID: &sub, Name: "a"}).Exec(ctx)
	require.NoError(t, err)

	count, err := b.NewSelect().Model((*Chain)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}
