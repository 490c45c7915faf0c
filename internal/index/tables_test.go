package index

import (
	"context"
	"fmt"
	"testing"

	catalogerrors "github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/errors"
	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/model"
	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/store"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDataSetTable_CreateGetUpdateDelete(t *testing.T) {
	table := NewDataSetTable(store.NewMemoryStore(zap.NewNop()), zap.NewNop())
	ctx := context.Background()
	ds := &model.DataSet{ProviderID: "P1", DataSetID: "D1", Description: "first", CreationTime: created}

	_, err := table.Get(ctx, "P1", "D1")
	assert.Equal(t, catalogerrors.ErrCodeDataSetNotFound, catalogerrors.GetCode(err))

	require.NoError(t, table.Create(ctx, ds))
	err = table.Create(ctx, ds)
	assert.True(t, catalogerrors.IsAlreadyExists(err))

	got, err := table.Get(ctx, "P1", "D1")
	require.NoError(t, err)
	if diff := cmp.Diff(ds, got); diff != "" {
		t.Errorf("data set mismatch (-want +got):\n%s", diff)
	}

	ds.Description = "second"
	require.NoError(t, table.Update(ctx, ds))
	got, err = table.Get(ctx, "P1", "D1")
	require.NoError(t, err)
	assert.Equal(t, "second", got.Description)

	require.NoError(t, table.Delete(ctx, "P1", "D1"))
	_, err = table.Get(ctx, "P1", "D1")
	assert.True(t, catalogerrors.IsNotFound(err))
}

func TestDataSetTable_List(t *testing.T) {
	table := NewDataSetTable(store.NewMemoryStore(zap.NewNop()), zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, table.Create(ctx, &model.DataSet{ProviderID: "P1", DataSetID: fmt.Sprintf("D%d", i)}))
	}
	require.NoError(t, table.Create(ctx, &model.DataSet{ProviderID: "P2", DataSetID: "X"}))

	var (
		ids   []string
		token string
	)
	for {
		sets, next, err := table.List(ctx, "P1", token, 2)
		require.NoError(t, err)
		for _, ds := range sets {
			ids = append(ids, ds.DataSetID)
		}
		if next == "" {
			break
		}
		token = next
	}
	assert.Equal(t, []string{"D0", "D1", "D2", "D3", "D4"}, ids)

	_, _, err := table.List(ctx, "P1", "_bucket", 2)
	assert.True(t, catalogerrors.IsMalformedToken(err))
}

func TestProviderTable(t *testing.T) {
	table := NewProviderTable(store.NewMemoryStore(zap.NewNop()), zap.NewNop())
	ctx := context.Background()

	_, err := table.Get(ctx, "P1")
	assert.Equal(t, catalogerrors.ErrCodeProviderNotFound, catalogerrors.GetCode(err))

	require.NoError(t, table.Create(ctx, &model.DataProvider{ProviderID: "P1", CreatedAt: created}))
	assert.True(t, catalogerrors.IsAlreadyExists(table.Create(ctx, &model.DataProvider{ProviderID: "P1"})))

	p, err := table.Get(ctx, "P1")
	require.NoError(t, err)
	assert.True(t, created.Equal(p.CreatedAt))
}

func TestRepresentationRegistry(t *testing.T) {
	registry := NewRepresentationRegistry(store.NewMemoryStore(zap.NewNop()), zap.NewNop())
	ctx := context.Background()

	_, err := registry.GetVersion(ctx, "C1", "edm", "v1")
	assert.Equal(t, catalogerrors.ErrCodeRepresentationNotFound, catalogerrors.GetCode(err))
	err = registry.HasRepresentation(ctx, "C1", "edm")
	assert.Equal(t, catalogerrors.ErrCodeRepresentationNotFound, catalogerrors.GetCode(err))

	require.NoError(t, registry.RegisterVersion(ctx, &model.RepresentationVersion{CloudID: "C1", Schema: "edm", Version: "v1", CreationDate: created}))
	require.NoError(t, registry.HasRepresentation(ctx, "C1", "edm"))
	err = registry.HasRepresentation(ctx, "C1", "mets")
	assert.Equal(t, catalogerrors.ErrCodeRepresentationNotFound, catalogerrors.GetCode(err))
	v, err := registry.GetVersion(ctx, "C1", "edm", "v1")
	require.NoError(t, err)
	assert.True(t, created.Equal(v.CreationDate))

	rev := &model.Revision{RevisionName: "R", RevisionProviderID: "RP", CreationTimestamp: t1, Acceptance: true}
	require.NoError(t, registry.AddRevision(ctx, "C1", "edm", "v1", rev))
	require.NoError(t, registry.AddRevision(ctx, "C1", "edm", "v1", rev))

	revisions, err := registry.ListRevisions(ctx, "C1", "edm", "v1")
	require.NoError(t, err)
	require.Len(t, revisions, 1)
	assert.True(t, revisions[0].Acceptance)
	assert.True(t, t1.Equal(revisions[0].CreationTimestamp))

	require.NoError(t, registry.RemoveRevision(ctx, "C1", "edm", "v1", rev))
	revisions, err = registry.ListRevisions(ctx, "C1", "edm", "v1")
	require.NoError(t, err)
	assert.Empty(t, revisions)
}
