// Package orchestrator drives the final send flow: preview assembly,
// confirmation, and the one-shot dispatch submission.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mailstorm/composer/internal/backend"
	"github.com/mailstorm/composer/internal/campaign"
	"github.com/mailstorm/composer/internal/draft"
	"github.com/mailstorm/composer/internal/journal"
	"github.com/mailstorm/composer/internal/metrics"
)

// Mode is the entry action that opened the send flow.
type Mode string

const (
	ModeImmediate Mode = "immediate"
	ModeScheduled Mode = "scheduled"
)

// State of the send flow. The flow is one-way: once a submission reaches a
// terminal state the session moves on, whatever the outcome.
type State string

const (
	StateIdle       State = "idle"
	StatePreviewing State = "previewing"
	StateSubmitting State = "submitting"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

var (
	// ErrNotReady rejects a send flow opened before all four facets complete.
	ErrNotReady = errors.New("campaign draft is not complete")
	// ErrScheduleTestImmediate rejects an immediate send while a schedule test
	// is selected; both cohorts need reserved instants.
	ErrScheduleTestImmediate = errors.New("a schedule test cannot be sent immediately")
	// ErrBadState rejects an operation not valid in the current state.
	ErrBadState = errors.New("operation not allowed in current state")
)

// Backend is the slice of the persistence API the orchestrator uses.
type Backend interface {
	CampaignStatus(ctx context.Context, id int64) (*backend.CampaignStatus, error)
	Send(ctx context.Context, req *backend.SendRequest) error
}

// Notifier receives user-facing outcome messages.
type Notifier interface {
	Info(msg string)
	Error(msg string)
}

// Preview is the confirmation view assembled when the send flow opens.
type Preview struct {
	Mode           Mode               `json:"mode"`
	CampaignID     int64              `json:"campaign_id"`
	CampaignName   string             `json:"campaign_name"`
	GroupName      string             `json:"group_name"`
	RecipientCount int                `json:"recipient_count"`
	SendInfo       campaign.SendInfo  `json:"send_info"`
	Content        campaign.Content   `json:"content"`
	Split          campaign.Split     `json:"split"`
	SplitText      string             `json:"split_text"`
	ScheduleA      campaign.WallClock `json:"schedule_a"`
	ScheduleB      campaign.WallClock `json:"schedule_b"`
}

// ScheduleInput carries the confirmed send times. B is required only for a
// schedule test.
type ScheduleInput struct {
	A campaign.WallClock  `json:"a"`
	B *campaign.WallClock `json:"b,omitempty"`
}

// Config for the orchestrator.
type Config struct {
	// NavigateDelay is how long a terminal outcome stays on screen before the
	// session is returned to the campaign list.
	NavigateDelay time.Duration
	// SubmitTimeout bounds the dispatch call.
	SubmitTimeout time.Duration
}

// Orchestrator owns the send flow for one editing session.
type Orchestrator struct {
	store    *draft.Store
	backend  Backend
	journal  *journal.Journal
	notifier Notifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
	cfg      Config

	// onNavigate, when set, fires after NavigateDelay once a submission
	// reaches a terminal state.
	onNavigate func()

	mu      sync.Mutex
	state   State
	preview *Preview
}

// New creates an orchestrator in the idle state.
func New(store *draft.Store, b Backend, j *journal.Journal, n Notifier, logger *slog.Logger, m *metrics.Metrics, cfg Config) *Orchestrator {
	if cfg.NavigateDelay <= 0 {
		cfg.NavigateDelay = time.Second
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 15 * time.Second
	}
	return &Orchestrator{
		store:    store,
		backend:  b,
		journal:  j,
		notifier: n,
		logger:   logger.With("component", "orchestrator"),
		metrics:  m,
		cfg:      cfg,
		state:    StateIdle,
	}
}

// OnNavigate registers the callback fired after a terminal outcome.
func (o *Orchestrator) OnNavigate(fn func()) {
	o.mu.Lock()
	o.onNavigate = fn
	o.mu.Unlock()
}

// State returns the current flow state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Preview returns the assembled confirmation view, nil outside the flow.
func (o *Orchestrator) Preview() *Preview {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.preview == nil {
		return nil
	}
	p := *o.preview
	return &p
}

// OpenPreview starts the send flow. The eligibility and schedule-test checks
// run against in-memory state before any network call is made.
func (o *Orchestrator) OpenPreview(ctx context.Context, mode Mode) (*Preview, error) {
	if mode != ModeImmediate && mode != ModeScheduled {
		return nil, fmt.Errorf("unknown send mode %q", mode)
	}

	d := o.store.Draft()
	if d == nil || !o.store.Completion().All() {
		return nil, ErrNotReady
	}
	// Keyed on the selected type alone: a leftover schedule type with the
	// test toggled off still blocks an immediate send.
	if mode == ModeImmediate && d.SendInfo.ABType == campaign.ABTypeSchedule {
		return nil, ErrScheduleTestImmediate
	}

	o.mu.Lock()
	if o.state != StateIdle {
		o.mu.Unlock()
		return nil, ErrBadState
	}
	o.state = StatePreviewing
	o.mu.Unlock()

	p, err := o.assemblePreview(ctx, mode, d)
	if err != nil {
		o.mu.Lock()
		o.state = StateIdle
		o.mu.Unlock()
		return nil, err
	}

	o.mu.Lock()
	o.preview = p
	o.mu.Unlock()

	o.metrics.PreviewsOpenedTotal.WithLabelValues(string(mode)).Inc()
	o.logger.Info("preview opened", "campaign_id", p.CampaignID, "mode", mode)
	return p, nil
}

// assemblePreview gathers the confirmation view: the status resource names the
// selected address book, and the recipient count is re-fetched so the shown
// audience size is current.
func (o *Orchestrator) assemblePreview(ctx context.Context, mode Mode, d *campaign.Draft) (*Preview, error) {
	status, err := o.backend.CampaignStatus(ctx, d.CampaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign status: %w", err)
	}
	count, err := o.store.RefreshRecipientCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh recipient count: %w", err)
	}
	d.RecipientCount = count

	split := campaign.PartitionDraft(d)
	now := time.Now()
	return &Preview{
		Mode:           mode,
		CampaignID:     d.CampaignID,
		CampaignName:   status.Name,
		GroupName:      status.GroupName,
		RecipientCount: count,
		SendInfo:       d.SendInfo,
		Content:        d.Content,
		Split:          split,
		SplitText:      splitText(d.SendInfo, split, count),
		ScheduleA:      campaign.WallClockAt(now),
		ScheduleB:      campaign.WallClockAt(now.Add(time.Hour)),
	}, nil
}

// splitText renders the audience division for the confirmation screen.
func splitText(si campaign.SendInfo, split campaign.Split, total int) string {
	if !si.ABEnabled() {
		return fmt.Sprintf("all %d recipients", total)
	}
	if si.ABType == campaign.ABTypeSchedule {
		return fmt.Sprintf("group A %d / group B %d", split.GroupA, split.GroupB)
	}
	return fmt.Sprintf("test %d%%: group A %d / group B %d, winner to %d",
		si.EffectiveTestRatio(), split.GroupA, split.GroupB, split.Remainder)
}

// ClosePreview abandons the flow without submitting.
func (o *Orchestrator) ClosePreview() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StatePreviewing {
		return
	}
	o.state = StateIdle
	o.preview = nil
}

// Confirm submits the dispatch request. Invalid schedule input keeps the flow
// in the previewing state; once the backend is called the flow is terminal
// either way, and after NavigateDelay the session is returned to the list.
func (o *Orchestrator) Confirm(ctx context.Context, input *ScheduleInput) error {
	// Claim the submission inside one critical section so two concurrent
	// confirms cannot both pass the state check and double-dispatch.
	o.mu.Lock()
	if o.state != StatePreviewing || o.preview == nil {
		o.mu.Unlock()
		return ErrBadState
	}
	p := o.preview
	o.state = StateSubmitting
	o.mu.Unlock()

	req, err := o.buildRequest(p, input)
	if err != nil {
		o.mu.Lock()
		o.state = StatePreviewing
		o.mu.Unlock()
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, o.cfg.SubmitTimeout)
	defer cancel()
	sendErr := o.backend.Send(sendCtx, req)

	entry := &journal.Entry{
		CampaignID: req.CampaignID,
		Type:       req.Type,
		ExecuteAt:  req.ExecuteAt,
		Execute2At: req.Execute2At,
		Outcome:    journal.OutcomeAccepted,
	}

	o.mu.Lock()
	o.preview = nil
	if sendErr != nil {
		o.state = StateFailed
	} else {
		o.state = StateSucceeded
	}
	o.mu.Unlock()

	if sendErr != nil {
		entry.Outcome = journal.OutcomeRejected
		entry.Error = sendErr.Error()
		o.metrics.SendSubmissionsTotal.WithLabelValues(req.Type, "error").Inc()
		o.logger.Error("dispatch rejected", "campaign_id", req.CampaignID, "type", req.Type, "error", sendErr)
		if o.notifier != nil {
			o.notifier.Error("send request failed")
		}
	} else {
		o.metrics.SendSubmissionsTotal.WithLabelValues(req.Type, "ok").Inc()
		o.logger.Info("dispatch accepted", "campaign_id", req.CampaignID, "type", req.Type,
			"execute_at", req.ExecuteAt, "execute2_at", req.Execute2At)
		if o.notifier != nil {
			o.notifier.Info("send request accepted")
		}
	}

	if o.journal != nil {
		if err := o.journal.Record(ctx, entry); err != nil {
			o.logger.Error("failed to record submission", "error", err)
		}
	}

	// The session leaves the editor after the delay whatever the outcome; a
	// failed campaign is re-entered from the list.
	o.mu.Lock()
	navigate := o.onNavigate
	o.mu.Unlock()
	if navigate != nil {
		time.AfterFunc(o.cfg.NavigateDelay, navigate)
	}

	return sendErr
}

// buildRequest validates the schedule input and renders the wire request.
func (o *Orchestrator) buildRequest(p *Preview, input *ScheduleInput) (*backend.SendRequest, error) {
	req := &backend.SendRequest{
		CampaignID: p.CampaignID,
		Type:       backend.SendTypeImmediate,
	}
	scheduleTest := p.SendInfo.ABType == campaign.ABTypeSchedule

	if p.Mode == ModeImmediate {
		if scheduleTest {
			return nil, ErrScheduleTestImmediate
		}
		return req, nil
	}

	if input == nil {
		return nil, errors.New("a send time is required for a scheduled send")
	}
	at, err := input.A.Instant()
	if err != nil {
		return nil, fmt.Errorf("invalid send time: %w", err)
	}
	req.Type = backend.SendTypeScheduled
	req.ExecuteAt = at

	if scheduleTest {
		if input.B == nil {
			return nil, errors.New("a schedule test needs a send time for each cohort")
		}
		at2, err := input.B.Instant()
		if err != nil {
			return nil, fmt.Errorf("invalid cohort B send time: %w", err)
		}
		req.Execute2At = at2
	}
	return req, nil
}

// Reset returns a terminal flow to idle. Called when a new campaign is opened.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateSubmitting {
		return
	}
	o.state = StateIdle
	o.preview = nil
}
