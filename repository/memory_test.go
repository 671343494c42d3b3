package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/regalsync/entity"
	"github.com/teranos/regalsync/errors"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	parent := entity.NewPID("edoweb", "1")
	child := entity.NewPID("edoweb", "2")

	require.NoError(t, m.CreateOrUpdateResource(ctx, Resource{PID: parent, Type: entity.TypeJournal}))
	require.NoError(t, m.CreateOrUpdateResource(ctx, Resource{PID: child, Type: entity.TypeVolume, ParentPID: parent}))
	require.NoError(t, m.CreateOrderedSequence(ctx, parent, []entity.PID{child}))
	require.NoError(t, m.AddCatalogIdentifier(ctx, parent, "hbz:929:02"))
	require.NoError(t, m.CreateDiscoverySet(ctx, parent))

	assert.Equal(t, []string{"edoweb:1", "edoweb:2"}, m.PIDs())
	assert.Equal(t, []string{"edoweb:2"}, m.Sequence("edoweb:1"))
	assert.Equal(t, "urn:nbn:de:hbz:929:02-1", m.URN("edoweb:1"))
	assert.True(t, m.InDiscoverySet("edoweb:1"))

	ok, err := m.Exists(ctx, child)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, m.Delete(ctx, child))
	ok, err = m.Exists(ctx, child)
	require.NoError(t, err)
	assert.False(t, ok)

	err = m.Delete(ctx, child)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestMemoryStoreRequiresResource(t *testing.T) {
	m := NewMemoryStore()
	err := m.SetMetadata(context.Background(), entity.NewPID("edoweb", "x"), "")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestMemoryStoreFailOn(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	pid := entity.NewPID("edoweb", "1")
	boom := errors.New("boom")

	m.FailOn("metadata", pid, boom)
	require.NoError(t, m.CreateOrUpdateResource(ctx, Resource{PID: pid, Type: entity.TypeFile}))
	assert.ErrorIs(t, m.SetMetadata(ctx, pid, "x"), boom)
	assert.Equal(t, []string{"resource", "metadata"}, m.CallsFor("edoweb:1"))

	m.FailOn("", pid, boom)
	assert.ErrorIs(t, m.CreateDiscoverySet(ctx, pid), boom)
}

func TestMemoryStoreURNIsStable(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	pid := entity.NewPID("edoweb", "1")
	require.NoError(t, m.CreateOrUpdateResource(ctx, Resource{PID: pid, Type: entity.TypeMonograph}))
	require.NoError(t, m.AddCatalogIdentifier(ctx, pid, "a"))
	require.NoError(t, m.AddCatalogIdentifier(ctx, pid, "b"))
	assert.Equal(t, "urn:nbn:de:a-1", m.URN("edoweb:1"))
}
