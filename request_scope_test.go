package di_test

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"

	"github.com/kod-kristoff/reqscope"
	"github.com/kod-kristoff/reqscope/internal/mocks"
	"github.com/kod-kristoff/reqscope/internal/testtypes"
	"github.com/kod-kristoff/reqscope/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var dbKey = di.NewKey[*testtypes.Conn]("db")

func connFactory(f *testtypes.ConnFactory) di.Factory {
	return func(context.Context) (any, di.Closer, error) {
		conn := f.Open()
		return conn, conn, nil
	}
}

func Test_RequestScope_Enter(t *testing.T) {
	t.Run("active", func(t *testing.T) {
		rs := di.NewRequestScope()

		ctx := context.Background()
		assert.False(t, rs.Active(ctx))
		assert.Empty(t, rs.ScopeID(ctx))

		reqCtx := rs.Enter(ctx)
		assert.True(t, rs.Active(reqCtx))
		assert.NotEmpty(t, rs.ScopeID(reqCtx))

		// The parent context is not affected
		assert.False(t, rs.Active(ctx))
	})

	t.Run("enter twice", func(t *testing.T) {
		rs := di.NewRequestScope()
		ctx := rs.Enter(context.Background())

		assert.PanicsWithError(t, "di.RequestScope.Enter: request scope already entered", func() {
			rs.Enter(ctx)
		})
	})

	t.Run("enter twice error", func(t *testing.T) {
		rs := di.NewRequestScope()
		ctx := rs.Enter(context.Background())

		v := testutils.Recover(func() { rs.Enter(ctx) })
		err, ok := v.(error)
		require.True(t, ok)
		assert.ErrorIs(t, err, di.ErrScopeReentered)
	})

	t.Run("enter after exit", func(t *testing.T) {
		rs := di.NewRequestScope()
		ctx := rs.Enter(context.Background())
		require.NoError(t, rs.Exit(ctx))

		ctx2 := rs.Enter(ctx)
		assert.True(t, rs.Active(ctx2))
		assert.False(t, rs.Active(ctx))
	})

	t.Run("separate request scopes", func(t *testing.T) {
		rs1 := di.NewRequestScope()
		rs2 := di.NewRequestScope()

		ctx := rs1.Enter(context.Background())
		assert.False(t, rs2.Active(ctx))

		ctx = rs2.Enter(ctx)
		assert.True(t, rs1.Active(ctx))
		assert.True(t, rs2.Active(ctx))
	})

	t.Run("unique scope ids", func(t *testing.T) {
		rs := di.NewRequestScope()

		ctx1 := rs.Enter(context.Background())
		ctx2 := rs.Enter(context.Background())

		assert.NotEqual(t, rs.ScopeID(ctx1), rs.ScopeID(ctx2))
	})
}

func Test_RequestScope_ResolveOrCreate(t *testing.T) {
	t.Run("memoized", func(t *testing.T) {
		rs := di.NewRequestScope()
		f := &testtypes.ConnFactory{}

		ctx := rs.Enter(context.Background())

		got1, err := rs.ResolveOrCreate(ctx, dbKey, connFactory(f))
		require.NoError(t, err)

		got2, err := rs.ResolveOrCreate(ctx, dbKey, connFactory(f))
		require.NoError(t, err)

		assert.Same(t, got1, got2)
		assert.Equal(t, 1, f.Opened())
	})

	t.Run("derived context", func(t *testing.T) {
		rs := di.NewRequestScope()
		f := &testtypes.ConnFactory{}

		ctx := rs.Enter(context.Background())
		got1, err := rs.ResolveOrCreate(ctx, dbKey, connFactory(f))
		require.NoError(t, err)

		childCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		got2, err := rs.ResolveOrCreate(childCtx, dbKey, connFactory(f))
		require.NoError(t, err)

		assert.Same(t, got1, got2)
	})

	t.Run("keys with the same name are distinct", func(t *testing.T) {
		rs := di.NewRequestScope()
		f := &testtypes.ConnFactory{}
		otherKey := di.NewKey[*testtypes.Conn]("db")

		ctx := rs.Enter(context.Background())

		got1, err := rs.ResolveOrCreate(ctx, dbKey, connFactory(f))
		require.NoError(t, err)

		got2, err := rs.ResolveOrCreate(ctx, otherKey, connFactory(f))
		require.NoError(t, err)

		assert.NotSame(t, got1, got2)
		assert.Equal(t, 2, f.Opened())
	})

	t.Run("separate requests", func(t *testing.T) {
		rs := di.NewRequestScope()
		f := &testtypes.ConnFactory{}

		ctxA := rs.Enter(context.Background())
		ctxB := rs.Enter(context.Background())

		gotA, err := rs.ResolveOrCreate(ctxA, dbKey, connFactory(f))
		require.NoError(t, err)

		gotB, err := rs.ResolveOrCreate(ctxB, dbKey, connFactory(f))
		require.NoError(t, err)

		assert.NotSame(t, gotA, gotB)
		assert.Equal(t, 2, f.Opened())
	})

	t.Run("before enter", func(t *testing.T) {
		rs := di.NewRequestScope()
		f := &testtypes.ConnFactory{}

		got, err := rs.ResolveOrCreate(context.Background(), dbKey, connFactory(f))
		testutils.LogError(t, err)

		assert.Nil(t, got)
		assert.ErrorIs(t, err, di.ErrOutsideRequestScope)
		assert.EqualError(t, err,
			"di.RequestScope.ResolveOrCreate db: request scoped, but no request scope entered")
		assert.Equal(t, 0, f.Opened())
	})

	t.Run("after exit", func(t *testing.T) {
		rs := di.NewRequestScope()
		f := &testtypes.ConnFactory{}

		ctx := rs.Enter(context.Background())
		require.NoError(t, rs.Exit(ctx))

		got, err := rs.ResolveOrCreate(ctx, dbKey, connFactory(f))
		assert.Nil(t, got)
		assert.ErrorIs(t, err, di.ErrOutsideRequestScope)
		assert.Equal(t, 0, f.Opened())

		// Exiting again does not release anything
		err = rs.Exit(ctx)
		assert.ErrorIs(t, err, di.ErrScopeNotActive)
	})

	t.Run("detached", func(t *testing.T) {
		rs := di.NewRequestScope()
		f := &testtypes.ConnFactory{}

		ctx := rs.Enter(context.Background())
		detached := rs.Detach(ctx)

		assert.False(t, rs.Active(detached))

		_, err := rs.ResolveOrCreate(detached, dbKey, connFactory(f))
		assert.ErrorIs(t, err, di.ErrOutsideRequestScope)
		assert.Equal(t, 0, f.Opened())
	})

	t.Run("factory error", func(t *testing.T) {
		rs := di.NewRequestScope()
		calls := 0

		ctx := rs.Enter(context.Background())
		factory := func(context.Context) (any, di.Closer, error) {
			calls++
			return nil, nil, stderrors.New("connection refused")
		}

		got, err := rs.ResolveOrCreate(ctx, dbKey, factory)
		assert.Nil(t, got)
		assert.EqualError(t, err, "di.RequestScope.ResolveOrCreate db: connection refused")

		// The error is memoized for the rest of the request
		_, err = rs.ResolveOrCreate(ctx, dbKey, factory)
		assert.EqualError(t, err, "di.RequestScope.ResolveOrCreate db: connection refused")
		assert.Equal(t, 1, calls)

		assert.NoError(t, rs.Exit(ctx))
	})

	t.Run("nil key", func(t *testing.T) {
		rs := di.NewRequestScope()
		ctx := rs.Enter(context.Background())

		_, err := rs.ResolveOrCreate(ctx, nil, connFactory(&testtypes.ConnFactory{}))
		assert.EqualError(t, err, "di.RequestScope.ResolveOrCreate: key is nil")

		_, err = rs.ResolveOrCreate(ctx, di.Key[*testtypes.Conn]{}, connFactory(&testtypes.ConnFactory{}))
		assert.EqualError(t, err, "di.RequestScope.ResolveOrCreate: key is nil")
	})

	t.Run("nil factory", func(t *testing.T) {
		rs := di.NewRequestScope()
		ctx := rs.Enter(context.Background())

		_, err := rs.ResolveOrCreate(ctx, dbKey, nil)
		assert.EqualError(t, err, "di.RequestScope.ResolveOrCreate db: factory is nil")
	})

	t.Run("concurrent goroutines in one request", func(t *testing.T) {
		const concurrency = 100

		rs := di.NewRequestScope()
		f := &testtypes.ConnFactory{}
		ctx := rs.Enter(context.Background())

		results := make(chan any, concurrency)
		testutils.RunParallel(concurrency, func(int) {
			got, err := rs.ResolveOrCreate(ctx, dbKey, connFactory(f))
			assert.NoError(t, err)
			results <- got
		})
		close(results)

		first := f.Conns()[0]
		for got := range results {
			assert.Same(t, first, got)
		}
		assert.Equal(t, 1, f.Opened())

		require.NoError(t, rs.Exit(ctx))
		assert.Equal(t, 1, first.Closes())
	})

	t.Run("concurrent requests", func(t *testing.T) {
		const concurrency = 200

		rs := di.NewRequestScope()
		f := &testtypes.ConnFactory{}

		var mu sync.Mutex
		seen := make(map[*testtypes.Conn]int)

		testutils.RunParallel(concurrency, func(i int) {
			ctx := rs.Enter(context.Background())

			got1, err := rs.ResolveOrCreate(ctx, dbKey, connFactory(f))
			assert.NoError(t, err)

			got2, err := rs.ResolveOrCreate(ctx, dbKey, connFactory(f))
			assert.NoError(t, err)
			assert.Same(t, got1, got2)

			mu.Lock()
			seen[got1.(*testtypes.Conn)] = i
			mu.Unlock()

			assert.NoError(t, rs.Exit(ctx))
		})

		assert.Len(t, seen, concurrency)
		assert.Equal(t, concurrency, f.Opened())
		for _, conn := range f.Conns() {
			assert.Equal(t, 1, conn.Closes(), "conn %d", conn.ID)
		}
	})
}

func Test_RequestScope_Exit(t *testing.T) {
	t.Run("no instances", func(t *testing.T) {
		rs := di.NewRequestScope()
		ctx := rs.Enter(context.Background())

		assert.NoError(t, rs.Exit(ctx))
		assert.False(t, rs.Active(ctx))
	})

	t.Run("not entered", func(t *testing.T) {
		rs := di.NewRequestScope()

		err := rs.Exit(context.Background())
		testutils.LogError(t, err)

		assert.ErrorIs(t, err, di.ErrScopeNotActive)
		assert.EqualError(t, err, "di.RequestScope.Exit: request scope not active")
	})

	t.Run("releases once in reverse order", func(t *testing.T) {
		rs := di.NewRequestScope()
		f := &testtypes.ConnFactory{}
		ctx := rs.Enter(context.Background())

		for i := range 3 {
			key := di.NewKey[*testtypes.Conn](fmt.Sprintf("conn%d", i))
			_, err := rs.ResolveOrCreate(ctx, key, connFactory(f))
			require.NoError(t, err)
		}

		require.NoError(t, rs.Exit(ctx))
		assert.Equal(t, []int{3, 2, 1}, f.ClosedOrder())

		// Exiting again must not release the instances a second time
		assert.Error(t, rs.Exit(ctx))
		for _, conn := range f.Conns() {
			assert.Equal(t, 1, conn.Closes())
		}
	})

	t.Run("instance without closer", func(t *testing.T) {
		rs := di.NewRequestScope()
		ctx := rs.Enter(context.Background())

		_, err := rs.ResolveOrCreate(ctx, di.NewKey[*testtypes.StructE](""),
			func(context.Context) (any, di.Closer, error) {
				return &testtypes.StructE{}, nil, nil
			})
		require.NoError(t, err)

		assert.NoError(t, rs.Exit(ctx))
	})

	t.Run("release errors are joined", func(t *testing.T) {
		rs := di.NewRequestScope()
		ctx := rs.Enter(context.Background())

		f := &testtypes.ConnFactory{}
		good := f.Open()
		bad1 := f.Open()
		bad1.CloseErr = stderrors.New("close error 1")
		bad2 := f.Open()
		bad2.CloseErr = stderrors.New("close error 2")

		for i, conn := range []*testtypes.Conn{good, bad1, bad2} {
			key := di.NewKey[*testtypes.Conn](fmt.Sprintf("conn%d", i))
			_, err := rs.ResolveOrCreate(ctx, key, func(context.Context) (any, di.Closer, error) {
				return conn, conn, nil
			})
			require.NoError(t, err)
		}

		err := rs.Exit(ctx)
		testutils.LogError(t, err)

		assert.EqualError(t, err, "di.RequestScope.Exit: close conn2: close error 2\nclose conn1: close error 1")
		assert.ErrorIs(t, err, bad1.CloseErr)
		assert.ErrorIs(t, err, bad2.CloseErr)

		// Every instance is released even though some failed
		for _, conn := range f.Conns() {
			assert.Equal(t, 1, conn.Closes())
		}
		assert.False(t, rs.Active(ctx))
	})

	t.Run("closer mock", func(t *testing.T) {
		rs := di.NewRequestScope()
		ctx := rs.Enter(context.Background())

		closer := mocks.NewCloserMock(t)
		closer.On("Close", mock.Anything).Return(nil).Once()

		_, err := rs.ResolveOrCreate(ctx, dbKey, func(context.Context) (any, di.Closer, error) {
			return &testtypes.Conn{}, closer, nil
		})
		require.NoError(t, err)

		assert.NoError(t, rs.Exit(ctx))
	})
}

func Test_RequestScope_Track(t *testing.T) {
	t.Run("released on exit", func(t *testing.T) {
		rs := di.NewRequestScope()
		ctx := rs.Enter(context.Background())
		conn := &testtypes.Conn{}

		require.NoError(t, rs.Track(ctx, dbKey, conn))
		assert.Equal(t, 0, conn.Closes())

		require.NoError(t, rs.Exit(ctx))
		assert.Equal(t, 1, conn.Closes())
	})

	t.Run("outside request scope", func(t *testing.T) {
		rs := di.NewRequestScope()
		conn := &testtypes.Conn{}

		err := rs.Track(context.Background(), dbKey, conn)
		assert.ErrorIs(t, err, di.ErrOutsideRequestScope)
		assert.EqualError(t, err, "di.RequestScope.Track db: request scoped, but no request scope entered")
		assert.Equal(t, 0, conn.Closes())
	})

	t.Run("nil closer", func(t *testing.T) {
		rs := di.NewRequestScope()
		ctx := rs.Enter(context.Background())

		err := rs.Track(ctx, dbKey, nil)
		assert.EqualError(t, err, "di.RequestScope.Track db: closer is nil")
	})
}

type recordingObserver struct {
	mu      sync.Mutex
	entered int
	created []string
	exited  []di.ExitStats
}

func (o *recordingObserver) ScopeEntered(context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entered++
}

func (o *recordingObserver) InstanceCreated(_ context.Context, key di.ServiceKey) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.created = append(o.created, key.String())
}

func (o *recordingObserver) ScopeExited(_ context.Context, stats di.ExitStats) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.exited = append(o.exited, stats)
}

func Test_RequestScope_Observer(t *testing.T) {
	obs := &recordingObserver{}
	rs := di.NewRequestScope(di.WithObserver(obs))
	f := &testtypes.ConnFactory{}

	ctx := rs.Enter(context.Background())
	id := rs.ScopeID(ctx)

	_, err := rs.ResolveOrCreate(ctx, dbKey, connFactory(f))
	require.NoError(t, err)
	_, err = rs.ResolveOrCreate(ctx, dbKey, connFactory(f))
	require.NoError(t, err)

	require.NoError(t, rs.Exit(ctx))

	assert.Equal(t, 1, obs.entered)
	assert.Equal(t, []string{"db"}, obs.created)
	require.Len(t, obs.exited, 1)
	assert.Equal(t, id, obs.exited[0].ScopeID)
	assert.Equal(t, 1, obs.exited[0].Released)
	assert.NoError(t, obs.exited[0].Err)
}

// Request A and request B run at the same time and both use the "db" key.
// Startup code outside any request cannot use it.
func Test_RequestScope_Scenario(t *testing.T) {
	rs := di.NewRequestScope()
	f := &testtypes.ConnFactory{}

	_, err := rs.ResolveOrCreate(context.Background(), dbKey, connFactory(f))
	require.ErrorIs(t, err, di.ErrOutsideRequestScope)

	ctxA := rs.Enter(context.Background())
	ctxB := rs.Enter(context.Background())

	i1, err := rs.ResolveOrCreate(ctxA, dbKey, connFactory(f))
	require.NoError(t, err)
	assert.Equal(t, 1, f.Opened())

	i2, err := rs.ResolveOrCreate(ctxB, dbKey, connFactory(f))
	require.NoError(t, err)
	assert.NotSame(t, i1, i2)

	again, err := rs.ResolveOrCreate(ctxA, dbKey, connFactory(f))
	require.NoError(t, err)
	assert.Same(t, i1, again)
	assert.Equal(t, 2, f.Opened())

	require.NoError(t, rs.Exit(ctxA))
	assert.Equal(t, 1, i1.(*testtypes.Conn).Closes())
	assert.Equal(t, 0, i2.(*testtypes.Conn).Closes())

	require.NoError(t, rs.Exit(ctxB))
	assert.Equal(t, 1, i1.(*testtypes.Conn).Closes())
	assert.Equal(t, 1, i2.(*testtypes.Conn).Closes())
}
