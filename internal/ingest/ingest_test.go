package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neotracker/neotracker/internal/catalog"
)

const cadResponse = `{
  "signature": {"source": "NASA/JPL SBDB Close Approach Data API", "version": "1.5"},
  "count": "3",
  "fields": ["des", "orbit_id", "jd", "cd", "dist", "dist_min", "dist_max", "v_rel", "v_inf", "t_sigma_f", "h"],
  "data": [
    ["2024 YR4", "47", "2463953.5", "2032-Dec-22 13:01", "0.00070", "0.0006", "0.0008", "13.4", "13.3", "< 00:01", "23.9"],
    ["2025 AB", "3", "2460700.5", "2025-Jan-09 06:45", "0.0231", "0.0230", "0.0232", "8.21", "8.19", "00:02", null],
    ["2025 BAD", "1", "2460700.5", "not a date", "0.0231", "0.0230", "0.0232", "8.21", "8.19", "00:02", "25.1"]
  ]
}`

func TestClientFetchSendsParams(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(cadResponse))
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/cad.api?fullname=false", 0)
	payload, err := client.Fetch(context.Background(), Params{DateMin: "now", DateMax: "+60"})
	require.NoError(t, err)

	require.NotNil(t, got)
	query := got.URL.Query()
	assert.Equal(t, "0.05", query.Get("dist-max"))
	assert.Equal(t, "50", query.Get("limit"))
	assert.Equal(t, "now", query.Get("date-min"))
	assert.Equal(t, "+60", query.Get("date-max"))
	assert.Equal(t, "false", query.Get("fullname"))
	assert.Equal(t, "application/json", got.Header.Get("Accept"))

	assert.Equal(t, "3", payload.Count.String())
	assert.Len(t, payload.Data, 3)
}

func TestClientFetchRejectsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, 0).Fetch(context.Background(), Params{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestClientFetchHonoursContext(t *testing.T) {
	client := NewClient("http://127.0.0.1:0", 0.001)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Fetch(ctx, Params{})
	require.Error(t, err)
}

func TestPayloadRecords(t *testing.T) {
	var payload Payload
	require.NoError(t, json.Unmarshal([]byte(cadResponse), &payload))

	records, rejected := payload.Records()
	require.Len(t, records, 2)
	require.Len(t, rejected, 1)
	assert.ErrorIs(t, rejected[0], catalog.ErrValidation)

	first := records[0]
	assert.Equal(t, "2024 YR4", first.Designation)
	assert.Equal(t, time.Date(2032, time.December, 22, 13, 1, 0, 0, time.UTC), first.ApproachTime)
	assert.Equal(t, 0.0007, first.DistanceAU)
	assert.Equal(t, 13.4, first.VelocityKmS)
	require.NotNil(t, first.AbsoluteMagnitude)
	assert.Equal(t, 23.9, *first.AbsoluteMagnitude)
	assert.True(t, first.Dangerous())

	assert.Nil(t, records[1].AbsoluteMagnitude)
}

func TestPayloadRecordsFallsBackToPositions(t *testing.T) {
	s := func(v string) *string { return &v }
	payload := &Payload{Data: [][]*string{
		{s("2019 OK"), s("x"), s("x"), s("2019-Jul-25 01:22"), s("0.00048"), s("x"), s("x"), s("24.5"), s("x"), s("x"), s("23.3")},
		{s("short row")},
		{s("2019 NEG"), s("x"), s("x"), s("2019-Jul-25 01:22"), s("-0.1"), s("x"), s("x"), s("24.5"), s("x"), s("x"), s("23.3")},
	}}
	records, rejected := payload.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "2019 OK", records[0].Designation)
	assert.Len(t, rejected, 2)

	var nilPayload *Payload
	records, rejected = nilPayload.Records()
	assert.Empty(t, records)
	assert.Empty(t, rejected)
}

type stubSource struct {
	payload *Payload
	err     error
	got     Params
}

func (s *stubSource) Fetch(ctx context.Context, params Params) (*Payload, error) {
	s.got = params
	return s.payload, s.err
}

type stubWriter struct {
	saved []catalog.Record
	err   error
}

func (w *stubWriter) SaveRecords(ctx context.Context, records []catalog.Record) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	w.saved = append(w.saved, records...)
	return len(records), nil
}

type stubInvalidator struct {
	bumps int
	err   error
}

func (i *stubInvalidator) Bump(ctx context.Context) (int64, error) {
	i.bumps++
	if i.err != nil {
		return 0, i.err
	}
	return int64(i.bumps + 1), nil
}

func TestServiceRunStoresAndBumps(t *testing.T) {
	var payload Payload
	require.NoError(t, json.Unmarshal([]byte(cadResponse), &payload))
	source := &stubSource{payload: &payload}
	writer := &stubWriter{}
	inv := &stubInvalidator{}

	summary, err := NewService(source, writer, inv, nil).Run(context.Background(), Params{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 10, source.got.Limit)
	assert.Equal(t, DefaultDistMax, source.got.DistMax)
	assert.Equal(t, 3, summary.Fetched)
	assert.Equal(t, 2, summary.Saved)
	assert.Equal(t, 1, summary.Rejected)
	assert.Equal(t, int64(2), summary.CacheVersion)
	assert.NotEmpty(t, summary.BatchID)
	assert.Len(t, writer.saved, 2)
	assert.Equal(t, 1, inv.bumps)
}

func TestServiceRunSkipsBumpWhenNothingSaved(t *testing.T) {
	inv := &stubInvalidator{}
	svc := NewService(&stubSource{payload: &Payload{}}, &stubWriter{}, inv, nil)
	summary, err := svc.Run(context.Background(), Params{})
	require.NoError(t, err)
	assert.Zero(t, summary.Saved)
	assert.Zero(t, inv.bumps)
}

func TestServiceRunPropagatesFailures(t *testing.T) {
	boom := errors.New("boom")
	_, err := NewService(&stubSource{err: boom}, &stubWriter{}, nil, nil).Run(context.Background(), Params{})
	assert.ErrorIs(t, err, boom)

	var payload Payload
	require.NoError(t, json.Unmarshal([]byte(cadResponse), &payload))
	_, err = NewService(&stubSource{payload: &payload}, &stubWriter{err: boom}, nil, nil).Run(context.Background(), Params{})
	assert.ErrorIs(t, err, boom)

	_, err = NewService(nil, nil, nil, nil).Run(context.Background(), Params{})
	assert.Error(t, err)
}

func TestServiceRunHandlesEmptySourceResponse(t *testing.T) {
	inv := &stubInvalidator{}
	writer := &stubWriter{}
	var summary Summary
	var err error
	require.NotPanics(t, func() {
		summary, err = NewService(&stubSource{}, writer, inv, nil).Run(context.Background(), Params{})
	})
	require.NoError(t, err)
	assert.Zero(t, summary.Fetched)
	assert.Zero(t, summary.Saved)
	assert.Zero(t, inv.bumps)
}

func TestServiceRunFailsWhenCacheBumpFails(t *testing.T) {
	var payload Payload
	require.NoError(t, json.Unmarshal([]byte(cadResponse), &payload))
	down := errors.New("redis down")
	inv := &stubInvalidator{err: down}
	writer := &stubWriter{}

	summary, err := NewService(&stubSource{payload: &payload}, writer, inv, nil).Run(context.Background(), Params{})
	require.Error(t, err)
	assert.ErrorIs(t, err, down)
	assert.True(t, catalog.IsTransport(err))
	assert.Equal(t, 2, summary.Saved)
	assert.Zero(t, summary.CacheVersion)
	assert.Len(t, writer.saved, 2)
	assert.Equal(t, 1, inv.bumps)
}
