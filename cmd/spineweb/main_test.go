package main

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/spineio/spineweb.go"
	"github.com/spineio/spineweb.go/pkg/models"
	"github.com/spineio/spineweb.go/pkg/pushstore/memstore"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	taskType    = models.TypeURL(models.SpinePrefix + "/spine.examples.Task")
	watchedPath = "subscriptions/watched"
)

type fakeBackend struct {
	store *memstore.Store
	items []any

	mu      sync.Mutex
	queries []*models.Query
}

func (f *fakeBackend) Command(context.Context, *models.Command) (*models.Ack, error) {
	return &models.Ack{OK: true}, nil
}

func (f *fakeBackend) Query(_ context.Context, q *models.Query, _ models.DeliveryStrategy) (*models.QueryResponse, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()

	path := "queries/" + q.ID
	for i, item := range f.items {
		if err := f.store.Set(path, fmt.Sprint(i), item); err != nil {
			return nil, err
		}
	}
	return &models.QueryResponse{Path: path, Count: len(f.items)}, nil
}

func (f *fakeBackend) SubscribeTo(_ context.Context, topic *models.Topic) (*models.Subscription, error) {
	return &models.Subscription{ID: models.SubscriptionID{Value: watchedPath}, Topic: topic}, nil
}

func (f *fakeBackend) KeepUp(context.Context, *models.Subscription) error { return nil }

func (f *fakeBackend) Cancel(context.Context, *models.Subscription) error { return nil }

func (f *fakeBackend) lastQuery(t *testing.T) *models.Query {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.queries)
	return f.queries[len(f.queries)-1]
}

// syncBuffer is written by the command goroutine and read by the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func run(t *testing.T, backend *fakeBackend, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand(spineweb.WithEndpoint(backend), spineweb.WithPushStore(backend.store))
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func lines(s string) []string {
	return strings.Split(strings.TrimSpace(s), "\n")
}

func TestFetchAtOnceCustomType(t *testing.T) {
	backend := &fakeBackend{
		store: memstore.New(),
		items: []any{
			map[string]any{"title": "write docs"},
			map[string]any{"title": "ship"},
		},
	}

	out, err := run(t, backend, "fetch", "--actor", "alice", "--type", string(taskType), "--at-once")
	require.NoError(t, err)

	got := lines(out)
	require.Len(t, got, 2)
	assert.JSONEq(t, `{"title":"write docs"}`, got[0])
	assert.JSONEq(t, `{"title":"ship"}`, got[1])

	q := backend.lastQuery(t)
	assert.Equal(t, "alice", q.Context.Actor)
	assert.True(t, q.Target.IncludeAll)
	assert.Nil(t, q.FieldMask)
}

func TestFetchOneByOneByIDs(t *testing.T) {
	backend := &fakeBackend{store: memstore.New(), items: []any{"one"}}

	out, err := run(t, backend, "fetch", "--actor", "alice",
		"--type", string(models.StringType), "--ids", "1,2", "--numeric-ids", "--mask", "value")
	require.NoError(t, err)
	assert.JSONEq(t, `"one"`, strings.TrimSpace(out))

	q := backend.lastQuery(t)
	require.NotNil(t, q.Target.Filters)
	ids := q.Target.Filters.IDFilter.IDs
	require.Len(t, ids, 2)
	assert.True(t, ids[0].ID.Equal(models.Int64(1)))
	assert.Equal(t, []string{"value"}, q.FieldMask.Paths)
}

func TestFetchRequiresType(t *testing.T) {
	_, err := run(t, &fakeBackend{store: memstore.New()}, "fetch", "--actor", "alice")
	assert.Error(t, err)
}

func TestFetchRejectsInvalidType(t *testing.T) {
	_, err := run(t, &fakeBackend{store: memstore.New()}, "fetch", "--actor", "alice", "--type", "no-slash")
	assert.Error(t, err)
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("SPINEWEB_ACTOR", "from-env")

	backend := &fakeBackend{store: memstore.New()}
	_, err := run(t, backend, "fetch", "--type", string(taskType), "--at-once")
	require.NoError(t, err)
	assert.Equal(t, "from-env", backend.lastQuery(t).Context.Actor)

	_, err = run(t, backend, "fetch", "--actor", "from-flag", "--type", string(taskType), "--at-once")
	require.NoError(t, err)
	assert.Equal(t, "from-flag", backend.lastQuery(t).Context.Actor)
}

func TestInvalidConfigFlag(t *testing.T) {
	_, err := run(t, &fakeBackend{store: memstore.New()}, "fetch", "--actor", "alice", "--codec", "xml", "--type", string(taskType))
	assert.ErrorIs(t, err, spineweb.ErrInvalidConfig)
}

func TestSubscribePrintsChanges(t *testing.T) {
	store := memstore.New()
	backend := &fakeBackend{store: store}

	cmd := NewRootCommand(spineweb.WithEndpoint(backend), spineweb.WithPushStore(store))
	out := &syncBuffer{}
	cmd.SetOut(out)
	cmd.SetErr(&syncBuffer{})
	cmd.SetArgs([]string{"subscribe", "--actor", "alice", "--type", string(taskType)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool { return store.Listeners(watchedPath) == 3 }, time.Second, 5*time.Millisecond)

	require.NoError(t, store.Set(watchedPath, "t1", map[string]any{"title": "draft"}))
	require.NoError(t, store.Set(watchedPath, "t1", map[string]any{"title": "final"}))
	require.NoError(t, store.Remove(watchedPath, "t1"))

	require.Eventually(t, func() bool { return strings.Count(out.String(), "\n") == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	// the three streams are consumed independently, so only per-kind order holds
	byKind := map[string]string{}
	for _, line := range lines(out.String()) {
		kind, body, ok := strings.Cut(line, "\t")
		require.True(t, ok, line)
		byKind[kind] = body
	}
	assert.JSONEq(t, `{"title":"draft"}`, byKind["added"])
	assert.JSONEq(t, `{"title":"final"}`, byKind["changed"])
	assert.JSONEq(t, `{"title":"final"}`, byKind["removed"])
	assert.Zero(t, store.Listeners(watchedPath))
}

func TestLiftIDs(t *testing.T) {
	got, err := liftIDs([]string{"a", "b"}, false)
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, got)

	got, err = liftIDs([]string{"1", "-2"}, true)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(-2)}, got)

	_, err = liftIDs([]string{"x"}, true)
	assert.Error(t, err)
}
