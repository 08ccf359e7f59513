package diagnostics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollector(t *testing.T) {
	c := NewCollector(nil)
	assert.False(t, c.HasErrors())

	c.Warn("vendor %q has a single transaction", "acme")
	c.Error("detector %s failed: %v", "duplicate", "boom")

	snap := c.Snapshot()
	assert.Equal(t, Version, snap.Version)
	assert.Equal(t, []string{`vendor "acme" has a single transaction`}, snap.Warnings)
	assert.Equal(t, []string{"detector duplicate failed: boom"}, snap.Errors)
	assert.True(t, c.HasErrors())
	assert.True(t, snap.HasErrors())
}

func TestCollector_SnapshotIsIndependent(t *testing.T) {
	c := NewCollector(nil)
	c.Error("first")

	snap := c.Snapshot()
	c.Error("second")

	assert.Len(t, snap.Errors, 1)
	assert.Len(t, c.Snapshot().Errors, 2)
}

func TestCollector_EmptySnapshotHasNonNilSlices(t *testing.T) {
	snap := NewCollector(nil).Snapshot()

	assert.NotNil(t, snap.Warnings)
	assert.NotNil(t, snap.Errors)
	assert.Empty(t, snap.Errors)
}
