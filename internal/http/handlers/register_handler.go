// Register HTTP handlers.
//
// This file exposes the register views and the bulk path:
//   - GET    /register/entries          (list, paginated, Last-Modified support)
//   - GET    /register/export           (positional text, Last-Modified support)
//   - GET    /register/entries/:id      (one entry)
//   - POST   /register/entries          (bulk submission)
//   - DELETE /register/entries/:id      (delete)
//
// Read views are conditional: the Last-Modified marker of a view lives in the
// tagged cache under the "register" tag, so any write to the register moves
// it forward and clients revalidate with If-Modified-Since.
package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-travel-register/internal/domain"
	"github.com/tbourn/go-travel-register/internal/http/middleware"
	"github.com/tbourn/go-travel-register/internal/services"
	"github.com/tbourn/go-travel-register/internal/utils"
)

//
// DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListEntriesResponse wraps a page of entries, pagination information, and
// the register-wide statistics.
type ListEntriesResponse struct {
	Entries    []domain.RegisterEntry `json:"entries"`
	Pagination Pagination             `json:"pagination"`
	// Count is the number of entries in the whole register.
	Count int64 `json:"count"`
	// LastUpdate is the latest change to any entry.
	LastUpdate *time.Time `json:"last_update,omitempty"`
}

// SubmitEntriesRequest is the bulk payload: one positional entry per line.
type SubmitEntriesRequest struct {
	Entries string `json:"entries" form:"entries" binding:"required" example:"2013-12-31 12:42:00 # 42.1234, -2.5678 # 20 # 7 # Hello world !"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params.
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	return utils.ClampPage(
		utils.AtoiDefault(c.Query("page"), defaultPage),
		utils.AtoiDefault(c.Query("page_size"), defaultPageSize),
		maxPageSize,
	)
}

// bindFilter reads from/to/q from the query string.
func bindFilter(c *gin.Context) domain.EntryFilter {
	return domain.EntryFilter{
		From:  strings.TrimSpace(c.Query("from")),
		To:    strings.TrimSpace(c.Query("to")),
		Query: strings.TrimSpace(c.Query("q")),
	}
}

// viewKey names a cached view: the view plus its canonical (sorted) query.
func viewKey(view string, q url.Values) string {
	return "register:" + view + "?" + q.Encode()
}

// notModified sets Last-Modified and Cache-Control for the view and reports
// whether the client copy is still fresh, in which case a 304 was written.
// Markers have second resolution on the wire. A cache error is logged and
// the view is served uncached.
func (h *Handlers) notModified(c *gin.Context, view string) bool {
	if h.cache == nil {
		return false
	}
	marker, err := h.cache.MarkerFor(c.Request.Context(), viewKey(view, c.Request.URL.Query()), services.TagRegister)
	if err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Str("view", view).Msg("cache marker unavailable")
		return false
	}
	lm := marker.UTC().Truncate(time.Second)
	c.Header("Last-Modified", lm.Format(http.TimeFormat))
	c.Header("Cache-Control", "public, no-cache")

	if ims := c.GetHeader("If-Modified-Since"); ims != "" {
		if t, err := http.ParseTime(ims); err == nil && !lm.After(t) {
			c.Status(http.StatusNotModified)
			return true
		}
	}
	return false
}

//
// Handlers
//

// ListEntries godoc
// @ID          listEntries
// @Summary     List register entries (paginated)
// @Description Returns a page of entries, newest first. Supports Last-Modified / If-Modified-Since and may return 304.
// @Tags        Register
// @Produce     json
//
// @Param       If-Modified-Since  header  string  false  "Return 304 if unchanged since"
// @Param       from       query   string  false  "Inclusive lower id bound (any prefix of YYYY-MM-DD hh:mm:ss)"  example(2024-06)
// @Param       to         query   string  false  "Inclusive upper id bound (any prefix)"                            example(2024-06-30)
// @Param       q          query   string  false  "Substring of the message"
// @Param       page       query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size  query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListEntriesResponse
// @Header      200  {string}  Last-Modified  "Time of the last register change seen by this view"
// @Header      200  {string}  Cache-Control  "public, no-cache"
// @Success     304  {string}  string "Not Modified"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /register/entries [get]
func (h *Handlers) ListEntries(c *gin.Context) {
	if h.notModified(c, "entries") {
		return
	}
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	items, total, err := h.register.ListPage(ctx, bindFilter(c), page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	count, last, err := h.register.Stats(ctx)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := utils.TotalPages(total, pageSize)
	ok(c, http.StatusOK, ListEntriesResponse{
		Entries: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
		Count:      count,
		LastUpdate: last,
	})
}

// ExportEntries godoc
// @ID          exportEntries
// @Summary     Export register entries as text
// @Description Renders matching entries, newest first, one positional line each. The output can be posted back to the bulk endpoint.
// @Tags        Register
// @Produce     plain
//
// @Param       If-Modified-Since  header  string  false  "Return 304 if unchanged since"
// @Param       from  query  string  false  "Inclusive lower id bound"
// @Param       to    query  string  false  "Inclusive upper id bound"
// @Param       q     query  string  false  "Substring of the message"
//
// @Success     200  {string}  string  "Positional lines"
// @Success     304  {string}  string  "Not Modified"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /register/export [get]
func (h *Handlers) ExportEntries(c *gin.Context) {
	if h.notModified(c, "export") {
		return
	}
	text, err := h.register.Export(c.Request.Context(), bindFilter(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(text))
}

// GetEntry godoc
// @ID          getEntry
// @Summary     Get one register entry
// @Tags        Register
// @Produce     json
// @Param       id   path  string  true  "Entry id (YYYY-MM-DD hh:mm:00)"  example(2024-06-15 09:30:00)
// @Success     200  {object}  domain.RegisterEntry
// @Failure     404  {object}  handlers.ErrorResponse "Entry not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /register/entries/{id} [get]
func (h *Handlers) GetEntry(c *gin.Context) {
	e, err := h.register.Get(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, services.ErrEntryNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "entry not found")
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	default:
		ok(c, http.StatusOK, e)
	}
}

// SubmitEntries godoc
// @ID          submitEntries
// @Summary     Submit register entries in bulk
// @Description Stores one positional entry per line ("YYYY-MM-DD hh:mm:ss # lat, lon # temp # weather # message"). Blank lines are skipped; lines in error are returned verbatim in "rejected".
// @Tags        Register
// @Accept      json
// @Accept      x-www-form-urlencoded
// @Produce     json
//
// @Param       body  body  handlers.SubmitEntriesRequest  true  "Entries, newline separated"
//
// @Success     200  {object}  services.BatchReport
// @Failure     400  {object}  handlers.ErrorResponse "Bad request or no entries"
// @Failure     500  {object}  handlers.ErrorResponse "Store failure"
// @Router      /register/entries [post]
func (h *Handlers) SubmitEntries(c *gin.Context) {
	var req SubmitEntriesRequest
	if err := c.ShouldBind(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "entries required")
		return
	}

	report, err := h.ingest.SubmitBatch(c.Request.Context(), req.Entries)
	switch {
	case errors.Is(err, services.ErrEmptyBatch):
		fail(c, http.StatusBadRequest, ErrCodeEmptyBatch, err.Error())
	case err != nil:
		middleware.LoggerFrom(c).Error().Err(err).
			Int("created", report.Created).
			Int("updated", report.Updated).
			Msg("batch aborted")
		fail(c, http.StatusInternalServerError, ErrCodeStoreFailed, "batch aborted by a store failure")
	default:
		ok(c, http.StatusOK, report)
	}
}

// DeleteEntry godoc
// @ID          deleteEntry
// @Summary     Delete a register entry
// @Tags        Register
// @Param       id   path  string  true  "Entry id (YYYY-MM-DD hh:mm:00)"
// @Success     204  {string}  string "No Content"
// @Failure     404  {object}  handlers.ErrorResponse "Entry not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /register/entries/{id} [delete]
func (h *Handlers) DeleteEntry(c *gin.Context) {
	err := h.register.Delete(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, services.ErrEntryNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "entry not found")
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeStoreFailed, err.Error())
	default:
		noContent(c)
	}
}
