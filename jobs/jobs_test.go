package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neotracker/neotracker/internal/catalog"
	"github.com/neotracker/neotracker/internal/ingest"
	jobmetrics "github.com/neotracker/neotracker/internal/jobs"
)

type stubIngester struct {
	got     ingest.Params
	summary ingest.Summary
	err     error
}

func (s *stubIngester) Run(ctx context.Context, params ingest.Params) (ingest.Summary, error) {
	s.got = params
	return s.summary, s.err
}

func TestIngestJobMergesDefaults(t *testing.T) {
	ingester := &stubIngester{summary: ingest.Summary{BatchID: "b1", Saved: 4, Rejected: 1}}
	job := NewIngestJob(ingester, ingest.Params{DistMax: 0.02, Limit: 20, DateMin: "now"}, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewIngestTask(IngestPayload{Params: ingest.Params{Limit: 5}, RequestedBy: "test"})
	require.NoError(t, err)
	assert.Equal(t, TaskIngestCloseApproaches, task.Type())

	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, ingest.Params{DistMax: 0.02, Limit: 5, DateMin: "now"}, ingester.got)
}

func TestIngestJobEmptyPayloadUsesDefaults(t *testing.T) {
	ingester := &stubIngester{}
	job := NewIngestJob(ingester, ingest.Params{}, nil, nil)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskIngestCloseApproaches, nil)))
	assert.Equal(t, ingest.DefaultLimit, ingester.got.Limit)
	assert.Equal(t, ingest.DefaultDistMax, ingester.got.DistMax)
}

func TestIngestJobBadPayloadSkipsRetry(t *testing.T) {
	job := NewIngestJob(&stubIngester{}, ingest.Params{}, nil, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskIngestCloseApproaches, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestIngestJobReturnsIngestError(t *testing.T) {
	boom := errors.New("source down")
	job := NewIngestJob(&stubIngester{err: boom}, ingest.Params{}, nil, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskIngestCloseApproaches, nil))
	assert.ErrorIs(t, err, boom)

	var unconfigured *IngestJob
	assert.Error(t, unconfigured.Handle(context.Background(), asynq.NewTask(TaskIngestCloseApproaches, nil)))
}

type stubEnqueuer struct {
	task *asynq.Task
	opts []asynq.Option
	err  error
}

func (s *stubEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	s.task = task
	s.opts = opts
	if s.err != nil {
		return nil, s.err
	}
	return &asynq.TaskInfo{ID: "task-42", Queue: QueueDefault, Type: task.Type()}, nil
}

func (s *stubEnqueuer) Close() error { return nil }

func TestClientTriggerRefresh(t *testing.T) {
	enqueuer := &stubEnqueuer{}
	client := newClient(enqueuer, 0)

	ack, err := client.TriggerRefresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "task-42", ack.TaskID)
	assert.Equal(t, QueueDefault, ack.Queue)
	assert.False(t, ack.EnqueuedAt.IsZero())

	var payload IngestPayload
	require.NoError(t, json.Unmarshal(enqueuer.task.Payload(), &payload))
	assert.Equal(t, "refresh", payload.RequestedBy)

	var retention time.Duration
	for _, opt := range enqueuer.opts {
		if opt.Type() == asynq.RetentionOpt {
			retention = opt.Value().(time.Duration)
		}
	}
	assert.Equal(t, DefaultRetention, retention)
	require.NoError(t, client.Close())
}

func TestClientTriggerRefreshWrapsErrors(t *testing.T) {
	client := newClient(&stubEnqueuer{err: errors.New("redis: connection refused")}, time.Minute)
	_, err := client.TriggerRefresh(context.Background())
	require.Error(t, err)
	assert.True(t, catalog.IsTransport(err))
}

type stubQueueInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubQueueInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func serveHealth(t *testing.T, inspector QueueInspector) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(inspector, nil).MountRoutes)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	return rr
}

func TestHealthReportsQueue(t *testing.T) {
	rr := serveHealth(t, stubQueueInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 3, Completed: 9}})
	require.Equal(t, http.StatusOK, rr.Code)

	var body queueHealth
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, queueHealth{Queue: QueueDefault, Pending: 3, Completed: 9}, body)
}

func TestHealthUnknownQueueIsEmpty(t *testing.T) {
	rr := serveHealth(t, stubQueueInspector{err: asynq.ErrQueueNotFound})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"queue":"default","pending":0,"active":0,"completed":0,"archived":0}`, rr.Body.String())
}

func TestHealthInspectorFailure(t *testing.T) {
	rr := serveHealth(t, stubQueueInspector{err: errors.New("redis down")})
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestNewWorkerRejectsBadCron(t *testing.T) {
	task, err := NewIngestTask(IngestPayload{})
	require.NoError(t, err)
	_, err = NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"},
		Cron:      []CronRegistration{{Spec: "not a cron", Task: task}},
	})
	assert.Error(t, err)
}
