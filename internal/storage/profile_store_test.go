package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/report-autofill/internal/domain"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestProfileStore(t *testing.T) *ProfileStore {
	t.Helper()
	return NewProfileStore(openTestDB(t), newTestLogger())
}

func TestProfileStore_PutAndGet(t *testing.T) {
	ctx := context.Background()
	store := newTestProfileStore(t)

	rev, err := store.Put(ctx, "ali", domain.Fields{"student_name": "Ali", "score": 90}, "created")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rev)

	rev, err = store.Put(ctx, "ali", domain.Fields{"student_name": "Ali", "score": 95}, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), rev)

	profile, err := store.Get(ctx, "ali")
	require.NoError(t, err)
	assert.Equal(t, "ali", profile.ID)
	assert.Equal(t, int64(2), profile.Revision)
	assert.Equal(t, float64(95), profile.Fields["score"])
	assert.False(t, profile.UpdatedAt.IsZero())
}

func TestProfileStore_GetErrors(t *testing.T) {
	ctx := context.Background()
	store := newTestProfileStore(t)

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = store.Get(ctx, "  ")
	assert.ErrorIs(t, err, domain.ErrInvalidProfileID)

	_, err = store.Put(ctx, "", domain.Fields{}, "")
	assert.ErrorIs(t, err, domain.ErrInvalidProfileID)
}

func TestProfileStore_StorageFailure(t *testing.T) {
	db := openTestDB(t)
	store := NewProfileStore(db, newTestLogger())
	require.NoError(t, db.Close())

	_, err := store.Get(context.Background(), "ali")
	assert.ErrorIs(t, err, domain.ErrStorageFailure)

	_, err = store.Put(context.Background(), "ali", domain.Fields{"student_name": "Ali"}, "")
	assert.ErrorIs(t, err, domain.ErrStorageFailure)
}

func TestProfileStore_History(t *testing.T) {
	ctx := context.Background()
	store := newTestProfileStore(t)
	store.pageSize = 2

	for i := 1; i <= 5; i++ {
		_, err := store.Put(ctx, "mona", domain.Fields{"student_name": "Mona", "lesson": i}, fmt.Sprintf("edit %d", i))
		require.NoError(t, err)
	}

	collect := func() []domain.Revision {
		var revisions []domain.Revision
		for rev, err := range store.History(ctx, "mona") {
			require.NoError(t, err)
			revisions = append(revisions, rev)
		}
		return revisions
	}

	revisions := collect()
	require.Len(t, revisions, 5)
	for i, rev := range revisions {
		assert.Equal(t, int64(i+1), rev.Number)
		assert.Equal(t, fmt.Sprintf("edit %d", i+1), rev.Note)
		assert.Equal(t, float64(i+1), rev.Fields["lesson"])
	}

	assert.Len(t, revisions[0].Changes, 2)
	assert.Equal(t, domain.FieldChange{Old: float64(1), New: float64(2)}, revisions[1].Changes["lesson"])

	// ranging again re-reads from the start
	assert.Len(t, collect(), 5)

	// stopping early is allowed
	count := 0
	for range store.History(ctx, "mona") {
		count++
		if count == 3 {
			break
		}
	}
	assert.Equal(t, 3, count)
}

func TestProfileStore_HistoryUnknownProfile(t *testing.T) {
	store := newTestProfileStore(t)

	var errs []error
	for _, err := range store.History(context.Background(), "ghost") {
		errs = append(errs, err)
	}

	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], domain.ErrNotFound)
}

func TestProfileStore_ConcurrentPutHasNoGaps(t *testing.T) {
	ctx := context.Background()
	store := newTestProfileStore(t)

	const writers = 20
	revisions := make([]int64, writers)

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rev, err := store.Put(ctx, "zaid", domain.Fields{"student_name": "Zaid", "writer": i}, "")
			assert.NoError(t, err)
			revisions[i] = rev
		}(i)
	}
	wg.Wait()

	sort.Slice(revisions, func(i, j int) bool { return revisions[i] < revisions[j] })
	for i, rev := range revisions {
		assert.Equal(t, int64(i+1), rev)
	}

	profile, err := store.Get(ctx, "zaid")
	require.NoError(t, err)
	assert.Equal(t, int64(writers), profile.Revision)

	count := 0
	for _, err := range store.History(ctx, "zaid") {
		require.NoError(t, err)
		count++
	}
	assert.Equal(t, writers, count)
}

func TestProfileStore_List(t *testing.T) {
	ctx := context.Background()
	store := newTestProfileStore(t)
	store.pageSize = 2

	seed := map[string]domain.Fields{
		"p1": {"student_name": "Ali Hassan", "teacher_name": "Mona"},
		"p2": {"student_name": "Sara", "teacher_name": "Mona"},
		"p3": {"student_name": "Omar", "teacher_name": "Khaled", "email": "omar@example.com"},
	}
	for id, fields := range seed {
		_, err := store.Put(ctx, id, fields, "")
		require.NoError(t, err)
	}

	tests := []struct {
		name   string
		filter domain.ProfileFilter
		want   []string
	}{
		{name: "no filter", filter: domain.ProfileFilter{}, want: []string{"p1", "p2", "p3"}},
		{name: "teacher query", filter: domain.ProfileFilter{Query: "mona"}, want: []string{"p1", "p2"}},
		{name: "email query", filter: domain.ProfileFilter{Query: "EXAMPLE.COM"}, want: []string{"p3"}},
		{name: "restricted fields", filter: domain.ProfileFilter{Query: "mona", Fields: []string{"student_name"}}, want: []string{}},
		{
			name: "match func",
			filter: domain.ProfileFilter{Match: func(p *domain.Profile) bool {
				return p.Fields.String("student_name") == "Sara"
			}},
			want: []string{"p2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profiles, err := store.List(ctx, tt.filter)
			require.NoError(t, err)

			ids := []string{}
			for _, p := range profiles {
				ids = append(ids, p.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}
