package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mailstorm/composer/internal/campaign"
	"github.com/mailstorm/composer/internal/draft"
	"github.com/mailstorm/composer/internal/journal"
	"github.com/mailstorm/composer/internal/orchestrator"
)

// DraftResponse is the response for draft reads.
type DraftResponse struct {
	Draft      *campaign.Draft     `json:"draft"`
	Completion campaign.Completion `json:"completion"`
}

// RenameRequest is the request body for PATCH /draft/name
type RenameRequest struct {
	Name string `json:"name"`
}

// SetGroupRequest is the request body for PUT /draft/group
type SetGroupRequest struct {
	GroupID *int64 `json:"group_id"`
}

// SendInfoRequest is the request body for PATCH /draft/sendinfo. Absent
// fields are left untouched.
type SendInfoRequest struct {
	ABTest      *bool   `json:"ab_test,omitempty"`
	ABType      *int    `json:"ab_type,omitempty"`
	TestRatio   *int    `json:"test_ratio,omitempty"`
	DelayUnit   *string `json:"delay_unit,omitempty"`
	DelayValue  *int    `json:"delay_value,omitempty"`
	DelayUnitB  *string `json:"delay_unit_b,omitempty"`
	DelayValueB *int    `json:"delay_value_b,omitempty"`
	Subject     *string `json:"subject,omitempty"`
	SubjectB    *string `json:"subject_b,omitempty"`
	SenderName  *string `json:"sender_name,omitempty"`
	SenderNameB *string `json:"sender_name_b,omitempty"`
	PreviewText *string `json:"preview_text,omitempty"`
}

// ContentRequest is the request body for PUT /draft/content/{variant}
type ContentRequest struct {
	HTML   string          `json:"html"`
	Design json.RawMessage `json:"design,omitempty"`
}

// CopyContentRequest is the request body for POST /draft/content/copy
type CopyContentRequest struct {
	From string `json:"from"` // "A" or "B"
}

// PreviewRequest is the request body for POST /send/preview
type PreviewRequest struct {
	Mode string `json:"mode"` // "immediate" or "scheduled"
}

// SendStateResponse is the response for GET /send/state
type SendStateResponse struct {
	State   orchestrator.State    `json:"state"`
	Preview *orchestrator.Preview `json:"preview,omitempty"`
}

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status   string `json:"status"`
	Uptime   string `json:"uptime"`
	Campaign int64  `json:"campaign_id,omitempty"`
}

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, HealthResponse{
		Status:   "ok",
		Uptime:   time.Since(s.startTime).Round(time.Second).String(),
		Campaign: s.store.CampaignID(),
	})
}

// handleOpenDraft handles POST /api/v1/drafts/{campaignID}/open
func (s *Server) handleOpenDraft(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "campaignID"), 10, 64)
	if err != nil || id <= 0 {
		s.sendError(w, http.StatusBadRequest, "invalid campaign id")
		return
	}

	s.orch.Reset()
	if err := s.store.Load(r.Context(), id); err != nil {
		if errors.Is(err, draft.ErrStale) {
			s.sendError(w, http.StatusConflict, "superseded by a newer campaign selection")
			return
		}
		s.logger.Error("failed to load draft", "campaign_id", id, "error", err)
		s.sendError(w, http.StatusBadGateway, "failed to load campaign")
		return
	}

	s.sendJSON(w, http.StatusOK, DraftResponse{
		Draft:      s.store.Draft(),
		Completion: s.store.Completion(),
	})
}

// handleDraft handles GET /api/v1/draft
func (s *Server) handleDraft(w http.ResponseWriter, r *http.Request) {
	d := s.store.Draft()
	if d == nil {
		s.sendError(w, http.StatusNotFound, "no campaign open")
		return
	}
	s.sendJSON(w, http.StatusOK, DraftResponse{Draft: d, Completion: s.store.Completion()})
}

// handleCompletion handles GET /api/v1/draft/completion
func (s *Server) handleCompletion(w http.ResponseWriter, r *http.Request) {
	if s.store.Draft() == nil {
		s.sendError(w, http.StatusNotFound, "no campaign open")
		return
	}
	s.sendJSON(w, http.StatusOK, s.store.Completion())
}

// handleSplit handles GET /api/v1/draft/split
func (s *Server) handleSplit(w http.ResponseWriter, r *http.Request) {
	d := s.store.Draft()
	if d == nil {
		s.sendError(w, http.StatusNotFound, "no campaign open")
		return
	}
	s.sendJSON(w, http.StatusOK, campaign.PartitionDraft(d))
}

// handleRename handles PATCH /api/v1/draft/name
func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	var req RenameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.store.Rename(r.Context(), req.Name); err != nil {
		s.logger.Error("rename failed", "error", err)
		s.sendError(w, http.StatusBadGateway, "failed to save campaign name")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSetGroup handles PUT /api/v1/draft/group
func (s *Server) handleSetGroup(w http.ResponseWriter, r *http.Request) {
	var req SetGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.store.SetGroup(r.Context(), req.GroupID); err != nil {
		s.sendError(w, http.StatusBadGateway, "failed to save address book selection")
		return
	}
	s.sendJSON(w, http.StatusOK, s.store.Completion())
}

// handleUpdateSendInfo handles PATCH /api/v1/draft/sendinfo. Each present
// field is applied as its own edit; the store coalesces the write-through.
func (s *Server) handleUpdateSendInfo(w http.ResponseWriter, r *http.Request) {
	if s.store.Draft() == nil {
		s.sendError(w, http.StatusNotFound, "no campaign open")
		return
	}

	var req SendInfoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.ABTest != nil {
		s.store.SetABTest(*req.ABTest)
	}
	if req.ABType != nil {
		t := campaign.ABType(*req.ABType)
		if !t.Valid() {
			s.sendError(w, http.StatusBadRequest, "invalid ab_type")
			return
		}
		s.store.SetABType(t)
	}
	if req.TestRatio != nil {
		if *req.TestRatio < 0 || *req.TestRatio > 100 {
			s.sendError(w, http.StatusBadRequest, "test_ratio must be 0-100")
			return
		}
		s.store.SetTestRatio(*req.TestRatio)
	}
	if req.DelayUnit != nil || req.DelayValue != nil {
		d := s.store.Draft()
		unit, value := d.SendInfo.DelayUnit, d.SendInfo.DelayValue
		if req.DelayUnit != nil {
			unit = campaign.DelayUnit(*req.DelayUnit)
		}
		if req.DelayValue != nil {
			value = *req.DelayValue
		}
		s.store.SetDelay(unit, value)
	}
	if req.DelayUnitB != nil || req.DelayValueB != nil {
		d := s.store.Draft()
		unit, value := d.SendInfo.DelayUnitB, d.SendInfo.DelayValueB
		if req.DelayUnitB != nil {
			unit = campaign.DelayUnit(*req.DelayUnitB)
		}
		if req.DelayValueB != nil {
			value = *req.DelayValueB
		}
		s.store.SetDelayB(unit, value)
	}
	if req.Subject != nil {
		s.store.SetSubject(*req.Subject)
	}
	if req.SubjectB != nil {
		s.store.SetSubjectB(*req.SubjectB)
	}
	if req.SenderName != nil {
		s.store.SetSenderName(*req.SenderName)
	}
	if req.SenderNameB != nil {
		s.store.SetSenderNameB(*req.SenderNameB)
	}
	if req.PreviewText != nil {
		s.store.SetPreviewText(*req.PreviewText)
	}

	s.sendJSON(w, http.StatusOK, DraftResponse{
		Draft:      s.store.Draft(),
		Completion: s.store.Completion(),
	})
}

// handleSetContent handles PUT /api/v1/draft/content/{variant}
func (s *Server) handleSetContent(w http.ResponseWriter, r *http.Request) {
	variant, ok := parseVariant(chi.URLParam(r, "variant"))
	if !ok {
		s.sendError(w, http.StatusBadRequest, "variant must be A or B")
		return
	}
	if s.store.Draft() == nil {
		s.sendError(w, http.StatusNotFound, "no campaign open")
		return
	}

	var req ContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.store.SetContent(variant, req.HTML, req.Design)
	s.sendJSON(w, http.StatusOK, s.store.Completion())
}

// handleCopyContent handles POST /api/v1/draft/content/copy
func (s *Server) handleCopyContent(w http.ResponseWriter, r *http.Request) {
	var req CopyContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	variant, ok := parseVariant(req.From)
	if !ok {
		s.sendError(w, http.StatusBadRequest, "from must be A or B")
		return
	}

	if err := s.store.CopyContent(r.Context(), variant); err != nil {
		s.logger.Error("content copy failed", "error", err)
		s.sendError(w, http.StatusBadGateway, "failed to copy content")
		return
	}
	s.sendJSON(w, http.StatusOK, DraftResponse{
		Draft:      s.store.Draft(),
		Completion: s.store.Completion(),
	})
}

// handleGroups handles GET /api/v1/groups
func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.groups.Groups(r.Context())
	if err != nil {
		s.logger.Error("failed to list groups", "error", err)
		s.sendError(w, http.StatusBadGateway, "failed to list address books")
		return
	}
	s.sendJSON(w, http.StatusOK, groups)
}

// handleSendState handles GET /api/v1/send/state
func (s *Server) handleSendState(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, SendStateResponse{
		State:   s.orch.State(),
		Preview: s.orch.Preview(),
	})
}

// handleOpenPreview handles POST /api/v1/send/preview
func (s *Server) handleOpenPreview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := s.orch.OpenPreview(r.Context(), orchestrator.Mode(req.Mode))
	switch {
	case err == nil:
	case errors.Is(err, orchestrator.ErrNotReady),
		errors.Is(err, orchestrator.ErrScheduleTestImmediate):
		s.sendError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, orchestrator.ErrBadState):
		s.sendError(w, http.StatusConflict, "a send flow is already open")
		return
	default:
		s.logger.Error("failed to open preview", "error", err)
		s.sendError(w, http.StatusBadGateway, "failed to assemble preview")
		return
	}

	s.sendJSON(w, http.StatusOK, p)
}

// handleClosePreview handles DELETE /api/v1/send/preview
func (s *Server) handleClosePreview(w http.ResponseWriter, r *http.Request) {
	s.orch.ClosePreview()
	w.WriteHeader(http.StatusNoContent)
}

// handleConfirm handles POST /api/v1/send/confirm
func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var input orchestrator.ScheduleInput
	hasBody := r.ContentLength != 0
	if hasBody {
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			s.sendError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	var arg *orchestrator.ScheduleInput
	if hasBody {
		arg = &input
	}

	err := s.orch.Confirm(r.Context(), arg)
	switch {
	case err == nil:
		s.sendJSON(w, http.StatusAccepted, SendStateResponse{State: s.orch.State()})
	case errors.Is(err, orchestrator.ErrBadState):
		s.sendError(w, http.StatusConflict, "no preview open")
	case s.orch.State() == orchestrator.StateFailed:
		s.sendJSON(w, http.StatusBadGateway, SendStateResponse{State: s.orch.State()})
	default:
		// Invalid schedule input; the preview stays open.
		s.sendError(w, http.StatusBadRequest, err.Error())
	}
}

// handleJournal handles GET /api/v1/journal
func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	filter := journal.ListFilter{Limit: 50}
	if v := r.URL.Query().Get("campaign_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.sendError(w, http.StatusBadRequest, "invalid campaign_id")
			return
		}
		filter.CampaignID = id
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.sendError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.sendError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		filter.Offset = n
	}

	entries, err := s.journal.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list journal", "error", err)
		s.sendError(w, http.StatusInternalServerError, "failed to list journal")
		return
	}
	if entries == nil {
		entries = []*journal.Entry{}
	}
	s.sendJSON(w, http.StatusOK, entries)
}

func parseVariant(v string) (draft.Variant, bool) {
	switch v {
	case "A", "a":
		return draft.VariantA, true
	case "B", "b":
		return draft.VariantB, true
	}
	return "", false
}

// sendJSON writes a JSON response
func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// sendError writes a JSON error response
func (s *Server) sendError(w http.ResponseWriter, status int, msg string) {
	s.sendJSON(w, status, ErrorResponse{Error: msg})
}
