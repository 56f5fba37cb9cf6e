package dberr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndCode(t *testing.T) {
	err := New(ObjectNotFound, "id %s", "abc")
	require.Error(t, err)
	assert.Equal(t, ObjectNotFound, err.Code())
	assert.Equal(t, "id abc", err.Message())
	assert.Equal(t, Code("ObjectNotFound"), CodeOf(err))
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(StorageIO, cause, "writing shard 3")
	assert.ErrorIs(t, err, cause)
	assert.True(t, Is(err, StorageIO))
	assert.False(t, Is(err, StorageCorrupt))
}

func TestIsThroughWrapping(t *testing.T) {
	inner := New(QuotaExceeded, "kind Test:1")
	outer := fmt.Errorf("commit failed: %w", inner)
	assert.True(t, Is(outer, QuotaExceeded))
}
