// Package dashboard serves the close-approach catalog as a JSON API: the raw
// snapshot, derived views, chart datasets, CSV export and refresh control.
package dashboard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"sync"

	"github.com/neotracker/neotracker/internal/catalog"
	"github.com/neotracker/neotracker/internal/platform/httpx"
	"github.com/neotracker/neotracker/internal/refresh"
)

// Refresher is the orchestrator surface the handlers depend on.
type Refresher interface {
	Request(ctx context.Context) (<-chan refresh.Outcome, error)
	Status() refresh.Status
	Store() *catalog.Store
}

// Handler serves the dashboard API.
type Handler struct {
	logger    *slog.Logger
	refresher Refresher
	csvPool   sync.Pool
}

// NewHandler constructs the dashboard handler.
func NewHandler(logger *slog.Logger, refresher Refresher) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{logger: logger, refresher: refresher}
	h.csvPool.New = func() interface{} { return new(bytes.Buffer) }
	return h
}

type viewResponse struct {
	catalog.View
	Snapshot refresh.SnapshotStats `json:"snapshot"`
	State    refresh.State         `json:"refresh_state"`
}

func (h *Handler) handleData(w http.ResponseWriter, r *http.Request) {
	records := catalog.Sort(h.refresher.Store().Records(), catalog.SortByApproachTime, catalog.Descending)
	httpx.JSON(w, http.StatusOK, records)
}

func (h *Handler) handleView(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	snap := h.refresher.Store().Snapshot()
	view := catalog.DeriveClamped(snap.Records, q)
	httpx.JSON(w, http.StatusOK, viewResponse{
		View:     view,
		Snapshot: refresh.SnapshotStats{Records: snap.Len(), Version: snap.Version, LoadedAt: snap.LoadedAt},
		State:    h.refresher.Status().State,
	})
}

func (h *Handler) handleCharts(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, catalog.Aggregate(catalog.Filter(h.refresher.Store().Records(), q)))
}

func (h *Handler) handleCSV(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	buf := h.csvPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer h.csvPool.Put(buf)

	if err := writeRecordsCSV(buf, catalog.Ordered(h.refresher.Store().Records(), q)); err != nil {
		h.logger.Error("export csv", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	contentType := mime.TypeByExtension(".csv")
	if contentType == "" {
		contentType = "text/csv; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="close-approaches.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) handleRefreshStatus(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.refresher.Status())
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if _, err := h.refresher.Request(r.Context()); err != nil {
		if errors.Is(err, refresh.ErrRefreshInProgress) {
			httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrConflict, err))
			return
		}
		h.logger.Error("request refresh", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, h.refresher.Status())
}

func parseQuery(r *http.Request) (catalog.ViewQuery, error) {
	q, err := catalog.ParseViewQuery(r.URL.Query())
	if err != nil {
		return q, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	return q, nil
}
