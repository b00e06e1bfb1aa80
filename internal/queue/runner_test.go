package queue

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/arrowline/internal/arrowline"
	"github.com/sells-group/arrowline/internal/model"
	"github.com/sells-group/arrowline/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func squareJob() Job {
	fc := geojson.NewFeatureCollection()
	for i, p := range []orb.Point{{9.1, 9.1}, {11.1, 9.1}, {11.1, 2.1}, {9.1, 2.1}} {
		f := geojson.NewFeature(p)
		f.Properties["order"] = float64(4 - i)
		fc.Append(f)
	}
	return Job{Features: fc, Config: arrowline.Config{
		Sort: arrowline.SortConfig{Property: "order", Order: arrowline.SortDesc, Type: arrowline.PropertyNumber},
	}}
}

func enqueue(t *testing.T, s store.Store, packageName string, payload []byte) *model.Task {
	t.Helper()
	task, err := s.CreateTask(context.Background(), store.NewTask{
		Type:        model.TaskTypeArrowLine,
		PackageName: packageName,
		Payload:     payload,
	})
	require.NoError(t, err)
	return task
}

func TestJob_EncodeDecode(t *testing.T) {
	data, err := EncodeJob(squareJob())
	require.NoError(t, err)

	job, err := DecodeJob(data)
	require.NoError(t, err)
	require.NotNil(t, job.Features)
	assert.Len(t, job.Features.Features, 4)
	assert.Equal(t, "order", job.Config.Sort.Property)
	assert.Equal(t, arrowline.SortDesc, job.Config.Sort.Order)
}

func TestDecodeJob_Invalid(t *testing.T) {
	_, err := DecodeJob([]byte(`{"features": 5}`))
	require.Error(t, err)
}

func TestJob_ValidateRequiresFeatures(t *testing.T) {
	err := Job{}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no features")
}

func TestRunner_RunPending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	payload, err := EncodeJob(squareJob())
	require.NoError(t, err)
	good := enqueue(t, s, "survey", payload)

	bad := squareJob()
	bad.Config.Sort = arrowline.SortConfig{Property: "when", Type: arrowline.PropertyDateTime}
	badPayload, err := EncodeJob(bad)
	require.NoError(t, err)
	failed := enqueue(t, s, "survey", badPayload)

	garbage := enqueue(t, s, "survey", []byte(`{"features": 5}`))

	r := NewRunner(s, Config{Concurrency: 2})
	stats, err := r.RunPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Claimed: 3, Succeeded: 1, Failed: 2}, stats)

	got, err := s.GetTask(ctx, good.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusDone, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, 3, got.Result.ArrowHeads)

	// Sorted descending by "order" the line starts at the first input point.
	heads, err := s.ListArrowHeads(ctx, good.ID)
	require.NoError(t, err)
	require.Len(t, heads, 3)
	assert.InDelta(t, 10.1, heads[0].Lon, 1e-9)
	assert.InDelta(t, 9.1, heads[0].Lat, 1e-9)

	got, err = s.GetTask(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusFailed, got.Status)
	assert.Contains(t, got.Error, "date time format")

	got, err = s.GetTask(ctx, garbage.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusFailed, got.Status)
	assert.Contains(t, got.Error, "decode job")
}

func TestRunner_RunPendingIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	payload, err := EncodeJob(squareJob())
	require.NoError(t, err)
	enqueue(t, s, "survey", payload)

	r := NewRunner(s, Config{Rate: 100})
	stats, err := r.RunPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Succeeded)

	stats, err = r.RunPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
}

func TestRunner_PackageFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	payload, err := EncodeJob(squareJob())
	require.NoError(t, err)
	enqueue(t, s, "survey", payload)
	other := enqueue(t, s, "other", payload)

	stats, err := NewRunner(s, Config{PackageName: "survey"}).RunPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Succeeded)

	got, err := s.GetTask(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusNotStarted, got.Status)
}

func TestRunner_CancelledContext(t *testing.T) {
	s := newTestStore(t)
	payload, err := EncodeJob(squareJob())
	require.NoError(t, err)
	enqueue(t, s, "survey", payload)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = NewRunner(s, Config{}).RunPending(ctx)
	require.Error(t, err)
}

// faultyStore wraps a Store and overrides selected writes.
type faultyStore struct {
	store.Store
	completeErr error
	failErr     error
	afterClaim  func()
}

func (f *faultyStore) ClaimTask(ctx context.Context, id string) (bool, error) {
	ok, err := f.Store.ClaimTask(ctx, id)
	if f.afterClaim != nil {
		f.afterClaim()
	}
	return ok, err
}

func (f *faultyStore) CompleteTask(ctx context.Context, id string, layer *arrowline.Layer) error {
	if f.completeErr != nil {
		return f.completeErr
	}
	return f.Store.CompleteTask(ctx, id, layer)
}

func (f *faultyStore) FailTask(ctx context.Context, id string, reason string) error {
	if f.failErr != nil {
		return f.failErr
	}
	return f.Store.FailTask(ctx, id, reason)
}

func TestRunner_CompleteErrorMarksTaskFailed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	payload, err := EncodeJob(squareJob())
	require.NoError(t, err)
	task := enqueue(t, s, "survey", payload)

	r := NewRunner(&faultyStore{Store: s, completeErr: eris.New("disk full")}, Config{})
	stats, err := r.RunPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Claimed: 1, Failed: 1}, stats)

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusFailed, got.Status)
	assert.Contains(t, got.Error, "disk full")

	stats, err = r.RunPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
}

func TestRunner_CompleteErrorDoesNotAbortRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	payload, err := EncodeJob(squareJob())
	require.NoError(t, err)
	for range 3 {
		enqueue(t, s, "survey", payload)
	}

	stats, err := NewRunner(&faultyStore{Store: s, completeErr: eris.New("disk full")}, Config{Concurrency: 1}).RunPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Claimed: 3, Failed: 3}, stats)

	started := model.TaskStatusStarted
	stuck, err := s.ListTasks(ctx, store.TaskFilter{Status: &started})
	require.NoError(t, err)
	assert.Empty(t, stuck)
}

func TestRunner_FinishesClaimedTaskAfterCancel(t *testing.T) {
	s := newTestStore(t)
	payload, err := EncodeJob(squareJob())
	require.NoError(t, err)
	task := enqueue(t, s, "survey", payload)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stats, err := NewRunner(&faultyStore{Store: s, afterClaim: cancel}, Config{Concurrency: 1}).RunPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Succeeded)

	got, err := s.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusDone, got.Status)
}

func TestRunner_RequeuesStaleTasks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	payload, err := EncodeJob(squareJob())
	require.NoError(t, err)
	task := enqueue(t, s, "survey", payload)

	// Both writes fail, so the claimed task cannot leave started.
	broken := &faultyStore{Store: s, completeErr: eris.New("disk full"), failErr: eris.New("disk full")}
	stats, err := NewRunner(broken, Config{}).RunPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Claimed: 1, Failed: 1}, stats)

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusStarted, got.Status)

	stats, err = NewRunner(s, Config{}).RunPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)

	time.Sleep(10 * time.Millisecond)
	stats, err = NewRunner(s, Config{StaleAfter: time.Millisecond}).RunPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Claimed: 1, Succeeded: 1, Requeued: 1}, stats)

	got, err = s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusDone, got.Status)
}
