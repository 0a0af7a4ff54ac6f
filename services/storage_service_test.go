package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalSourceStoreRoundTrip(t *testing.T) {
	t.Parallel()
	store, err := NewLocalSourceStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	key := GenerateSourceKey("my-handler")
	require.NoError(t, store.SaveSource(ctx, key, echoSource))

	got, err := store.GetSource(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, echoSource, got)

	require.NoError(t, store.DeleteSource(ctx, key))
	_, err = store.GetSource(ctx, key)
	assert.Error(t, err)
}

func TestLocalSourceStoreOverwrite(t *testing.T) {
	t.Parallel()
	store, err := NewLocalSourceStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	key := GenerateSourceKey("my-handler")
	require.NoError(t, store.SaveSource(ctx, key, echoSource))
	require.NoError(t, store.SaveSource(ctx, key, shoutSource))

	got, err := store.GetSource(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, shoutSource, got)
}

func TestGenerateSourceKeySanitizes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "handlers/plain-uri.js", GenerateSourceKey("plain-uri"))
	assert.Equal(t, "handlers/slack-deploys.js", GenerateSourceKey("slack-deploys"))
	assert.Equal(t, "handlers/___etc_passwd.js", GenerateSourceKey("../etc/passwd"))
	assert.Equal(t, "handlers/a_b_c.js", GenerateSourceKey("a/b c"))
}

func TestNewSourceStoreUnknownType(t *testing.T) {
	t.Parallel()

	_, err := NewSourceStore("tape", "/tmp")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tape")
}
