package reporting

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/po-master/po-master/internal/procurement"
)

func newCachedService(t *testing.T, src *memorySource) (*Service, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return newTestService(src, NewCache(client, time.Minute)), mr, client
}

func TestDashboardServedFromCache(t *testing.T) {
	_, ds := newFixture()
	src := &memorySource{ds: ds}
	svc, _, _ := newCachedService(t, src)
	ctx := context.Background()

	first, err := svc.Dashboard(ctx, asOf)
	require.NoError(t, err)
	require.EqualValues(t, 1, src.loads.Load())

	src.ds.Projects = nil
	second, err := svc.Dashboard(ctx, asOf)
	require.NoError(t, err)
	require.EqualValues(t, 1, src.loads.Load())
	require.Equal(t, first.ProjectCount, second.ProjectCount)
	eur, ok := second.Currencies.Get("EUR")
	require.True(t, ok)
	require.Equal(t, 1000.0, eur.TotalOrdered)
}

func TestNotifyChangeForcesRebuild(t *testing.T) {
	fx, ds := newFixture()
	src := &memorySource{ds: ds}
	svc, _, _ := newCachedService(t, src)
	ctx := context.Background()

	_, err := svc.Dashboard(ctx, asOf)
	require.NoError(t, err)

	src.ds.Payments = []procurement.Payment{{ID: uuid.New(), ScheduleID: ptr(fx.final.ID), Amount: 700}}
	require.NoError(t, svc.NotifyChange(ctx, procurement.ChangeEvent{Entity: "payment", Action: "create"}))

	vm, err := svc.Dashboard(ctx, asOf)
	require.NoError(t, err)
	require.EqualValues(t, 2, src.loads.Load())
	eur, _ := vm.Currencies.Get("EUR")
	require.Equal(t, 700.0, eur.TotalPaid)
}

func TestCacheKeysCarryVersion(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	cache := NewCache(client, time.Minute)
	ctx := context.Background()

	key, err := cache.BuildKey(ctx, "dashboard", "2024-05-10")
	require.NoError(t, err)
	require.Equal(t, "pomaster:reports:dashboard:2024-05-10:v1", key)

	require.NoError(t, cache.Bump(ctx))
	key, err = cache.BuildKey(ctx, "dashboard", "2024-05-10")
	require.NoError(t, err)
	require.Equal(t, "pomaster:reports:dashboard:2024-05-10:v2", key)
}

func TestDisabledCacheBuildsDirectly(t *testing.T) {
	cache := NewCache(nil, time.Minute)
	require.False(t, cache.Enabled())
	key, err := cache.BuildKey(context.Background(), "projects", "all")
	require.NoError(t, err)
	require.Equal(t, "pomaster:reports:projects:all", key)
	require.NoError(t, cache.Bump(context.Background()))

	var out []string
	hit, err := cache.FetchJSON(context.Background(), key, &out, func(context.Context) (any, error) {
		return []string{"a"}, nil
	})
	require.NoError(t, err)
	require.False(t, hit)
	require.Equal(t, []string{"a"}, out)
}

func TestRedisOutageDegradesToDirectBuild(t *testing.T) {
	_, ds := newFixture()
	src := &memorySource{ds: ds}
	svc, mr, _ := newCachedService(t, src)
	mr.Close()

	vm, err := svc.Projects(context.Background())
	require.NoError(t, err)
	require.Len(t, vm.Projects, 1)
	require.Equal(t, "Harbour", vm.Projects[0].Name)
}

func TestLoadFailureIsNotCached(t *testing.T) {
	_, ds := newFixture()
	src := &memorySource{ds: ds, failOn: "payments"}
	svc, _, client := newCachedService(t, src)
	ctx := context.Background()

	_, err := svc.Payments(ctx)
	require.Error(t, err)

	keys, err := client.Keys(ctx, "pomaster:reports:payments:*").Result()
	require.NoError(t, err)
	require.Empty(t, keys)

	src.failOn = ""
	vm, err := svc.Payments(ctx)
	require.NoError(t, err)
	require.Empty(t, vm.Payments)
}

func TestListenForInvalidation(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	cache := NewCache(client, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	versions := make(chan int64, 1)
	require.NoError(t, cache.ListenForInvalidation(ctx, func(v int64) { versions <- v }))
	_, err := cache.Version(ctx)
	require.NoError(t, err)
	require.NoError(t, cache.Bump(ctx))

	select {
	case v := <-versions:
		require.EqualValues(t, 2, v)
	case <-time.After(2 * time.Second):
		t.Fatal("bump not received")
	}
}

func TestFollowedVersionSkipsRedisRead(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	cache := NewCache(client, time.Minute)
	clock := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return clock }
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	versions := make(chan int64, 1)
	require.NoError(t, cache.ListenForInvalidation(ctx, func(v int64) { versions <- v }))
	ver, err := cache.Version(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, ver)

	require.NoError(t, mr.Set(cacheVersionKey, "9"))
	ver, err = cache.Version(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, ver)

	other := NewCache(client, time.Minute)
	require.NoError(t, other.Bump(ctx))
	select {
	case v := <-versions:
		require.EqualValues(t, 10, v)
	case <-time.After(2 * time.Second):
		t.Fatal("bump not received")
	}
	key, err := cache.BuildKey(ctx, "dashboard", "2024-05-10")
	require.NoError(t, err)
	require.Equal(t, "pomaster:reports:dashboard:2024-05-10:v10", key)

	require.NoError(t, mr.Set(cacheVersionKey, "12"))
	clock = clock.Add(versionRefresh)
	ver, err = cache.Version(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 12, ver)

	cancel()
	require.Eventually(t, func() bool {
		_, ok := cache.followedVersion()
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}
