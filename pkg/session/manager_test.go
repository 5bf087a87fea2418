package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/aretw0/parley/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SlowStore simulates latency to provoke race conditions if locking is missing.
type SlowStore struct {
	inner *memory.Store
}

func (s *SlowStore) Save(ctx context.Context, sessionID string, state *domain.State) error {
	time.Sleep(5 * time.Millisecond)
	return s.inner.Save(ctx, sessionID, state)
}

func (s *SlowStore) Load(ctx context.Context, sessionID string) (*domain.State, error) {
	time.Sleep(5 * time.Millisecond)
	return s.inner.Load(ctx, sessionID)
}

func (s *SlowStore) Delete(ctx context.Context, sessionID string) error {
	return s.inner.Delete(ctx, sessionID)
}

func (s *SlowStore) List(ctx context.Context) ([]string, error) {
	return s.inner.List(ctx)
}

func initCounter(ctx context.Context) (*domain.State, error) {
	return &domain.State{Variables: domain.Variables{"count": json.Number("0")}}, nil
}

func increment(ctx context.Context, state *domain.State) (*domain.State, error) {
	n, err := state.Variables["count"].(json.Number).Int64()
	if err != nil {
		return nil, err
	}
	next := state.Clone()
	next.Variables["count"] = json.Number(strconv.FormatInt(n+1, 10))
	return next, nil
}

func TestManager_UpdateSerializesTurns(t *testing.T) {
	mgr := session.NewManager(&SlowStore{inner: memory.NewStore()})
	ctx := context.Background()

	const turns = 20
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := mgr.Update(ctx, "s1", initCounter, increment)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	state, err := mgr.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, json.Number("20"), state.Variables["count"], "no lost updates")
}

func TestManager_LoadOrInit(t *testing.T) {
	mgr := session.NewManager(memory.NewStore())
	ctx := context.Background()

	var calls atomic.Int32
	init := func(ctx context.Context) (*domain.State, error) {
		calls.Add(1)
		return initCounter(ctx)
	}

	first, err := mgr.LoadOrInit(ctx, "s1", init)
	require.NoError(t, err)
	second, err := mgr.LoadOrInit(ctx, "s1", init)
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, first, second)

	ids, err := mgr.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, ids)
}

func TestManager_FailedTurnDoesNotSave(t *testing.T) {
	mgr := session.NewManager(memory.NewStore())
	ctx := context.Background()

	_, err := mgr.Update(ctx, "s1", initCounter, increment)
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = mgr.Update(ctx, "s1", initCounter, func(ctx context.Context, state *domain.State) (*domain.State, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	state, err := mgr.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, json.Number("1"), state.Variables["count"])

	_, err = mgr.Update(ctx, "fresh", initCounter, func(ctx context.Context, state *domain.State) (*domain.State, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	_, err = mgr.Load(ctx, "fresh")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound, "failed first turn leaves no session")
}

func TestManager_InitFailure(t *testing.T) {
	mgr := session.NewManager(memory.NewStore())
	boom := errors.New("no version")

	_, err := mgr.Update(context.Background(), "s1",
		func(ctx context.Context) (*domain.State, error) { return nil, boom },
		increment,
	)
	assert.ErrorIs(t, err, boom)
}

type recordingLocker struct {
	mu     sync.Mutex
	locked []string
	fail   error
}

func (l *recordingLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	if l.fail != nil {
		return nil, l.fail
	}
	l.mu.Lock()
	l.locked = append(l.locked, key)
	l.mu.Unlock()
	return func(context.Context) error { return nil }, nil
}

func TestManager_DistributedLock(t *testing.T) {
	locker := &recordingLocker{}
	mgr := session.NewManager(memory.NewStore(), session.WithLocker(locker), session.WithLockTTL(time.Second))
	ctx := context.Background()

	_, err := mgr.Update(ctx, "s1", initCounter, increment)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, locker.locked)

	locker.fail = errors.New("lock busy")
	_, err = mgr.Update(ctx, "s1", initCounter, increment)
	assert.ErrorContains(t, err, "lock busy")
}
