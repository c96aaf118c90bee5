package dbstore_test

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/sre-norns/vellum/pkg/dbstore"
	"github.com/sre-norns/vellum/pkg/preview"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newStore(t *testing.T) *dbstore.DbStore {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	store, err := dbstore.NewDbStore(db)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() {
		_ = store.Close()
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	return store
}

func TestSaveAndGet(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	content := bytes.Repeat([]byte("%PDF-1.4 page "), 100)

	saved, err := store.Save(ctx, "abc", preview.Response{
		RequestID:   1,
		PrintTicket: `{"requestID":1}`,
		PageCount:   3,
		ContentType: "application/pdf",
		Data:        content,
	})
	require.NoError(t, err)
	require.Equal(t, len(content), saved.Size)
	require.Less(t, len(saved.Data), len(content))

	got, ok, err := store.Get(ctx, "abc", 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, content, got.Data)
	require.Equal(t, 3, got.PageCount)
	require.Equal(t, `{"requestID":1}`, got.Response().PrintTicket)

	_, ok, err = store.Get(ctx, "abc", 2)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = store.Save(ctx, "", preview.Response{})
	require.ErrorIs(t, err, dbstore.ErrNoSessionID)
}

func TestSave_Replaces(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	_, err := store.Save(ctx, "abc", preview.Response{RequestID: 0, TaskID: "abc-0"})
	require.NoError(t, err)
	_, err = store.Save(ctx, "abc", preview.Response{RequestID: 0, PageCount: 2, Data: []byte("done")})
	require.NoError(t, err)

	got, ok, err := store.Get(ctx, "abc", 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, got.PageCount)
	require.Equal(t, []byte("done"), got.Data)

	list, err := store.List(ctx, "abc", dbstore.Pagination{}, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestLatestAndList(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	_, ok, err := store.Latest(ctx, "abc")
	require.NoError(t, err)
	require.False(t, ok)

	for _, id := range []int{0, 2, 1} {
		_, err := store.Save(ctx, "abc", preview.Response{RequestID: id, Data: []byte{byte(id)}})
		require.NoError(t, err)
	}
	_, err = store.Save(ctx, "other", preview.Response{RequestID: 7})
	require.NoError(t, err)

	latest, ok, err := store.Latest(ctx, "abc")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, latest.RequestID)
	require.Equal(t, []byte{2}, latest.Data)

	list, err := store.List(ctx, "abc", dbstore.Pagination{Offset: 1}, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, 1, list[0].RequestID)
	require.Equal(t, 2, list[1].RequestID)
	require.Empty(t, list[0].Data)

	list, err = store.List(ctx, "abc", dbstore.Pagination{Limit: 100}, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)

	removed, err := store.DeleteSession(ctx, "abc")
	require.NoError(t, err)
	require.EqualValues(t, 3, removed)

	_, ok, err = store.Get(ctx, "other", 7)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestPagination_ClampLimit(t *testing.T) {
	testCases := map[string]struct {
		given  uint
		expect uint
	}{
		"zero":  {given: 0, expect: 50},
		"below": {given: 10, expect: 10},
		"above": {given: 100, expect: 50},
	}

	for name, tc := range testCases {
		test := tc
		t.Run(name, func(t *testing.T) {
			p := dbstore.Pagination{Limit: test.given}
			p.ClampLimit(50)
			require.Equal(t, test.expect, p.Limit)
		})
	}
}
