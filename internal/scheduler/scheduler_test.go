package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"stats-bot/internal/cache"
	"stats-bot/internal/models"
	"stats-bot/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strp(v string) *string { return &v }

// fakeNames 内存中的用户名存储
type fakeNames struct {
	mu       sync.Mutex
	latest   map[int64]models.Identity
	applied  []service.NameChange
	applyErr error
}

func (f *fakeNames) LatestNames(context.Context) (map[int64]models.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[int64]models.Identity, len(f.latest))
	for k, v := range f.latest {
		out[k] = v
	}
	return out, nil
}

func (f *fakeNames) ApplyNameChanges(_ context.Context, changes []service.NameChange) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applyErr != nil {
		return f.applyErr
	}
	f.applied = append(f.applied, changes...)
	for _, c := range changes {
		f.latest[c.UserID] = c.Identity
	}
	return nil
}

type fakeIDs []int64

func (f fakeIDs) MessageUserIDs(context.Context) ([]int64, error) { return f, nil }

// fakeLookup 按用户返回固定结果
type fakeLookup struct {
	identities map[int64]models.Identity
	errs       map[int64]error
	calls      int32
}

func (f *fakeLookup) LookupMember(_ context.Context, userID int64) (models.Identity, error) {
	atomic.AddInt32(&f.calls, 1)
	if err, ok := f.errs[userID]; ok {
		return models.Identity{}, err
	}
	return f.identities[userID], nil
}

// lockedCache 写锁总是超时的缓存
type lockedCache struct{}

func (lockedCache) Replace(context.Context, map[int64]models.Identity) error {
	return cache.ErrLockTimeout
}
func (lockedCache) Len() int { return 0 }

func TestDiff_Rules(t *testing.T) {
	stored := map[int64]models.Identity{
		1: models.NewIdentity("alice", "Alice A."),
		2: models.NewIdentity("alice", "Alice A."),
		3: models.NewIdentity("carol", "Carol"),
		4: {ShortName: nil, FullName: strp("Dave")},
		5: {ShortName: strp("eve"), FullName: nil},
	}
	fetched := map[int64]models.Identity{
		1: models.NewIdentity("alice2", "Alice A."),
		2: models.NewIdentity("alice2", "Alice B."),
		3: models.NewIdentity("carol", "Carol"),
		4: models.NewIdentity("Dave", "Dave"),
		5: models.NewIdentity("eve", "Eve"),
		6: models.NewIdentity("@new", "New User"),
	}

	changes := Diff(stored, fetched)
	kinds := make(map[int64]service.ChangeKind, len(changes))
	for _, c := range changes {
		kinds[c.UserID] = c.Kind
	}

	assert.Equal(t, map[int64]service.ChangeKind{
		1: service.ChangeShortName,
		2: service.ChangeFull,
		4: service.ChangeShortName,
		5: service.ChangeFull,
		6: service.ChangeInsert,
	}, kinds)
	assert.Equal(t, int64(1), changes[0].UserID, "changes are ordered by user id")
	assert.Equal(t, "alice2", *changes[0].Identity.ShortName)
}

func TestDiff_NullStoredFieldAlwaysDiffers(t *testing.T) {
	stored := map[int64]models.Identity{1: {}}
	changes := Diff(stored, map[int64]models.Identity{1: {}})
	require.Len(t, changes, 1)
	assert.Equal(t, service.ChangeFull, changes[0].Kind)
}

func TestReconciler_RunCycle(t *testing.T) {
	names := &fakeNames{latest: map[int64]models.Identity{
		1: models.NewIdentity("alice", "Alice A."),
	}}
	lookup := &fakeLookup{
		identities: map[int64]models.Identity{
			1: models.NewIdentity("alice2", "Alice A."),
			2: models.NewIdentity("@bob", "Bob B."),
		},
		errs: map[int64]error{
			3: ErrNotMember,
			4: errors.New("timeout"),
		},
	}
	identityCache := cache.NewIdentityCache(time.Second)

	r := NewReconciler(fakeIDs{1, 2, 3, 4}, names, lookup, identityCache, 0)
	report := r.RunCycle(context.Background())

	assert.Equal(t, int32(4), lookup.calls, "exactly one lookup per user")
	assert.Equal(t, 4, report.Seen)
	assert.Equal(t, 2, report.Resolved)
	assert.Equal(t, 1, report.NotMembers)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Changes[service.ChangeShortName])
	assert.Equal(t, 1, report.Changes[service.ChangeInsert])
	assert.True(t, report.CacheSwapped)
	assert.Positive(t, report.Duration)

	assert.Equal(t, 2, identityCache.Len())
	assert.Equal(t, "alice2", identityCache.Name(1))
	assert.Equal(t, "@bob", identityCache.Name(2))
	assert.False(t, identityCache.Contains(3))
}

func TestReconciler_WriteFailureStillReloads(t *testing.T) {
	names := &fakeNames{
		latest:   map[int64]models.Identity{1: models.NewIdentity("alice", "Alice A.")},
		applyErr: errors.New("db down"),
	}
	lookup := &fakeLookup{identities: map[int64]models.Identity{2: models.NewIdentity("bob", "Bob")}}
	identityCache := cache.NewIdentityCache(time.Second)

	report := NewReconciler(fakeIDs{2}, names, lookup, identityCache, 0).RunCycle(context.Background())

	assert.True(t, report.WriteFailed)
	assert.True(t, report.CacheSwapped)
	assert.True(t, identityCache.Contains(1))
	assert.False(t, identityCache.Contains(2))
}

func TestReconciler_LockTimeoutIsContained(t *testing.T) {
	names := &fakeNames{latest: map[int64]models.Identity{}}
	lookup := &fakeLookup{identities: map[int64]models.Identity{1: models.NewIdentity("a", "A")}}

	var report CycleReport
	assert.NotPanics(t, func() {
		report = NewReconciler(fakeIDs{1}, names, lookup, lockedCache{}, 0).RunCycle(context.Background())
	})
	assert.False(t, report.CacheSwapped)
	assert.Len(t, names.applied, 1, "store changes are still written")
}

func TestScheduler_InitialRunAndPrivacyCheck(t *testing.T) {
	names := &fakeNames{latest: map[int64]models.Identity{}}
	lookup := &fakeLookup{identities: map[int64]models.Identity{9: models.NewIdentity("@z", "Z")}}
	identityCache := cache.NewIdentityCache(time.Second)
	r := NewReconciler(fakeIDs{9}, names, lookup, identityCache, 0)

	var checked int32
	s := NewScheduler(r, nil, nil, func() bool {
		atomic.StoreInt32(&checked, 1)
		return false
	}, Options{InitialDelay: 10 * time.Millisecond})

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Eventually(t, func() bool { return identityCache.Contains(9) }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&checked) == 1 }, time.Second, 10*time.Millisecond)
}

func TestScheduler_BadInterval(t *testing.T) {
	s := NewScheduler(nil, nil, nil, nil, Options{ReconcileInterval: "not a schedule"})
	assert.Error(t, s.Start(context.Background()))
}
