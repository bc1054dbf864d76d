// Package draft owns the in-memory campaign draft for one editing session.
// The store reloads the four facets from the persistence API, applies
// defaults for fields the server never recorded, autosaves edits back with a
// per-facet debounce, and keeps the facet completion state current.
package draft

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mailstorm/composer/internal/backend"
	"github.com/mailstorm/composer/internal/campaign"
	"github.com/mailstorm/composer/internal/metrics"
)

// Facet keys for autosave grouping.
const (
	facetSendInfo = "sendinfo"
	facetContent  = "content"
)

// Variant selects the A or B side of a content test.
type Variant string

const (
	VariantA Variant = "A"
	VariantB Variant = "B"
)

// ErrStale marks a facet load that resolved after a newer campaign was
// selected; its result has been discarded.
var ErrStale = errors.New("draft load superseded by a newer campaign selection")

// Backend is the slice of the persistence API the store uses.
type Backend interface {
	Campaign(ctx context.Context, id int64) (*backend.Campaign, error)
	RenameCampaign(ctx context.Context, id int64, name string) error
	SetCampaignGroup(ctx context.Context, id int64, groupID *int64) error
	SendInfo(ctx context.Context, campaignID int64) (*backend.SendInfo, error)
	UpdateSendInfo(ctx context.Context, campaignID int64, patch *backend.SendInfoPatch) (*backend.SendInfo, error)
	Content(ctx context.Context, campaignID int64) (*backend.Content, error)
	UpdateContent(ctx context.Context, campaignID int64, patch *backend.ContentPatch) (*backend.Content, error)
	RecipientCount(ctx context.Context, campaignID int64) (int, error)
}

// Config for the store.
type Config struct {
	// SenderEmail is the fixed, non-editable sender address applied when the
	// server has none recorded.
	SenderEmail string
	// AutosaveDebounce is the quiet period before an edited facet is written
	// through.
	AutosaveDebounce time.Duration
	// WriteTimeout bounds each autosave write.
	WriteTimeout time.Duration
}

// Store is the canonical owner of one campaign draft.
type Store struct {
	backend Backend
	logger  *slog.Logger
	metrics *metrics.Metrics
	cfg     Config
	deb     *debouncer

	mu    sync.Mutex
	epoch uint64
	// local is the working copy the user edits; persisted mirrors the last
	// server-acknowledged values. Completion is always computed from
	// persisted, so a rejected write never reports a facet as done.
	local         *campaign.Draft
	persisted     *campaign.Draft
	completion    campaign.Completion
	contentDirtyA bool
	contentDirtyB bool
	closed        bool

	// onCompletion, when set, is called with the new flags after every
	// completion recompute that changed them.
	onCompletion func(campaign.Completion)
}

// New creates a store. The debounce defaults to 400ms.
func New(b Backend, logger *slog.Logger, m *metrics.Metrics, cfg Config) *Store {
	if cfg.AutosaveDebounce <= 0 {
		cfg.AutosaveDebounce = 400 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &Store{
		backend: b,
		logger:  logger.With("component", "draft"),
		metrics: m,
		cfg:     cfg,
		deb:     newDebouncer(cfg.AutosaveDebounce),
	}
}

// OnCompletion registers the completion listener.
func (s *Store) OnCompletion(fn func(campaign.Completion)) {
	s.mu.Lock()
	s.onCompletion = fn
	s.mu.Unlock()
}

// Load fetches the four facet resources concurrently and commits them as a
// group. A load that resolves after a newer Load call started is discarded
// and reported as ErrStale.
func (s *Store) Load(ctx context.Context, campaignID int64) error {
	s.mu.Lock()
	s.epoch++
	epoch := s.epoch
	s.mu.Unlock()
	s.deb.cancelAll()

	start := time.Now()

	var (
		wg    sync.WaitGroup
		mc    *backend.Campaign
		si    *backend.SendInfo
		ct    *backend.Content
		count int
		errs  [4]error
	)
	wg.Add(4)
	go func() { defer wg.Done(); mc, errs[0] = s.backend.Campaign(ctx, campaignID) }()
	go func() { defer wg.Done(); si, errs[1] = s.backend.SendInfo(ctx, campaignID) }()
	go func() { defer wg.Done(); ct, errs[2] = s.backend.Content(ctx, campaignID) }()
	go func() { defer wg.Done(); count, errs[3] = s.backend.RecipientCount(ctx, campaignID) }()
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			s.metrics.DraftLoadsTotal.WithLabelValues("error").Inc()
			return err
		}
	}

	d := buildDraft(campaignID, mc, si, ct, count, s.cfg.SenderEmail)

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		s.metrics.StaleLoadsDiscarded.Inc()
		s.logger.Debug("discarded stale facet load", "campaign_id", campaignID)
		return ErrStale
	}
	s.local = d
	snapshot := *d
	s.persisted = &snapshot
	s.contentDirtyA, s.contentDirtyB = false, false
	changed := s.recomputeLocked()
	s.mu.Unlock()

	s.metrics.DraftLoadsTotal.WithLabelValues("ok").Inc()
	s.metrics.DraftLoadSeconds.Observe(time.Since(start).Seconds())
	s.logger.Info("draft loaded", "campaign_id", campaignID, "recipients", count)
	s.notify(changed)
	return nil
}

// buildDraft converts wire resources into a draft, constructing defaults for
// every absent field in one place. The A/B flag itself stays tri-state: an
// unrecorded choice keeps the plan facet incomplete.
func buildDraft(id int64, mc *backend.Campaign, si *backend.SendInfo, ct *backend.Content, count int, senderEmail string) *campaign.Draft {
	d := &campaign.Draft{
		CampaignID:     id,
		Name:           mc.Name,
		GroupID:        mc.GroupID,
		RecipientCount: count,
	}

	d.SendInfo = campaign.SendInfo{
		ABTest:      si.ABTest,
		ABType:      campaign.DefaultABType,
		TestRatio:   campaign.DefaultTestRatio,
		DelayUnit:   campaign.DefaultDelayUnit,
		DelayValue:  campaign.DefaultDelayValue,
		DelayUnitB:  campaign.DefaultDelayUnit,
		DelayValueB: campaign.DefaultDelayValue,
		Subject:     si.Subject,
		SubjectB:    si.SubjectB,
		SenderName:  si.SenderName,
		SenderNameB: si.SenderNameB,
		SenderEmail: strings.TrimSpace(si.SenderEmail),
		PreviewText: si.PreviewText,
	}
	if si.ABType != nil {
		d.SendInfo.ABType = campaign.ABType(*si.ABType)
	}
	if si.TestRatio != nil {
		d.SendInfo.TestRatio = *si.TestRatio
	}
	if si.DailyUnit != nil {
		d.SendInfo.DelayUnit = campaign.DelayUnit(*si.DailyUnit)
	}
	if si.DailyValue != nil {
		d.SendInfo.DelayValue = *si.DailyValue
	}
	if si.DailyUnitB != nil {
		d.SendInfo.DelayUnitB = campaign.DelayUnit(*si.DailyUnitB)
	}
	if si.DailyValueB != nil {
		d.SendInfo.DelayValueB = *si.DailyValueB
	}
	if d.SendInfo.SenderEmail == "" {
		d.SendInfo.SenderEmail = senderEmail
	}

	d.Content = campaign.Content{
		HTML:    ct.HTML,
		Design:  ct.Design,
		HTMLB:   ct.HTMLB,
		DesignB: ct.DesignB,
	}
	return d
}

// Draft returns a copy of the working draft, or nil before the first load.
func (s *Store) Draft() *campaign.Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.local == nil {
		return nil
	}
	d := *s.local
	return &d
}

// Completion returns the current facet flags.
func (s *Store) Completion() campaign.Completion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completion
}

// CampaignID returns the loaded campaign id, zero before the first load.
func (s *Store) CampaignID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.local == nil {
		return 0
	}
	return s.local.CampaignID
}

// RefreshRecipientCount re-fetches the audience size snapshot.
func (s *Store) RefreshRecipientCount(ctx context.Context) (int, error) {
	s.mu.Lock()
	if s.local == nil {
		s.mu.Unlock()
		return 0, nil
	}
	id := s.local.CampaignID
	s.mu.Unlock()

	count, err := s.backend.RecipientCount(ctx, id)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	if s.local != nil && s.local.CampaignID == id {
		s.local.RecipientCount = count
		s.persisted.RecipientCount = count
	}
	s.mu.Unlock()
	return count, nil
}

// Rename saves a new campaign name immediately. Blank names and unloaded
// drafts are silent no-ops.
func (s *Store) Rename(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	s.mu.Lock()
	if s.local == nil || name == "" {
		s.mu.Unlock()
		return nil
	}
	id := s.local.CampaignID
	s.local.Name = name
	s.mu.Unlock()

	return s.backend.RenameCampaign(ctx, id, name)
}

// SetGroup selects (or clears) the address book, writing through immediately
// when the value actually changed.
func (s *Store) SetGroup(ctx context.Context, groupID *int64) error {
	s.mu.Lock()
	if s.local == nil {
		s.mu.Unlock()
		return nil
	}
	if equalGroup(s.local.GroupID, groupID) {
		s.mu.Unlock()
		return nil
	}
	id := s.local.CampaignID
	s.local.GroupID = groupID
	s.mu.Unlock()

	if err := s.backend.SetCampaignGroup(ctx, id, groupID); err != nil {
		s.metrics.AutosaveWritesTotal.WithLabelValues("audience", "error").Inc()
		s.logger.Error("group save failed", "campaign_id", id, "error", err)
		return err
	}
	s.metrics.AutosaveWritesTotal.WithLabelValues("audience", "ok").Inc()

	s.mu.Lock()
	var changed bool
	if s.local != nil && s.local.CampaignID == id {
		s.persisted.GroupID = groupID
		changed = s.recomputeLocked()
	}
	s.mu.Unlock()
	s.notify(changed)
	return nil
}

func equalGroup(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Send-metadata mutations. Each updates the working copy synchronously and
// schedules a coalesced write-through of the whole facet.

func (s *Store) SetABTest(enabled bool) {
	s.mutateSendInfo(func(si *campaign.SendInfo) { si.ABTest = &enabled })
}

// SetABType switches the tested element. Selecting a schedule test pins the
// ratio to 100: the whole audience becomes the two test cohorts.
func (s *Store) SetABType(t campaign.ABType) {
	if !t.Valid() {
		return
	}
	s.mutateSendInfo(func(si *campaign.SendInfo) {
		si.ABType = t
		if t == campaign.ABTypeSchedule {
			si.TestRatio = 100
		}
	})
}

func (s *Store) SetTestRatio(pct int) {
	if pct < 0 || pct > 100 {
		return
	}
	s.mutateSendInfo(func(si *campaign.SendInfo) {
		// Not user-adjustable while the schedule type is selected.
		if si.ABType == campaign.ABTypeSchedule {
			return
		}
		si.TestRatio = pct
	})
}

func (s *Store) SetDelay(unit campaign.DelayUnit, value int) {
	s.mutateSendInfo(func(si *campaign.SendInfo) {
		si.DelayUnit = unit
		si.DelayValue = value
	})
}

func (s *Store) SetDelayB(unit campaign.DelayUnit, value int) {
	s.mutateSendInfo(func(si *campaign.SendInfo) {
		si.DelayUnitB = unit
		si.DelayValueB = value
	})
}

func (s *Store) SetSubject(v string) {
	s.mutateSendInfo(func(si *campaign.SendInfo) { si.Subject = v })
}

func (s *Store) SetSubjectB(v string) {
	s.mutateSendInfo(func(si *campaign.SendInfo) { si.SubjectB = v })
}

func (s *Store) SetSenderName(v string) {
	s.mutateSendInfo(func(si *campaign.SendInfo) { si.SenderName = v })
}

func (s *Store) SetSenderNameB(v string) {
	s.mutateSendInfo(func(si *campaign.SendInfo) { si.SenderNameB = v })
}

func (s *Store) SetPreviewText(v string) {
	s.mutateSendInfo(func(si *campaign.SendInfo) { si.PreviewText = v })
}

func (s *Store) mutateSendInfo(fn func(*campaign.SendInfo)) {
	s.mu.Lock()
	if s.local == nil || s.closed {
		s.mu.Unlock()
		return
	}
	fn(&s.local.SendInfo)
	epoch := s.epoch
	changed := s.recomputeLocked()
	s.mu.Unlock()
	s.notify(changed)

	s.deb.trigger(facetSendInfo, func() { s.flushSendInfo(epoch) })
}

// SetContent replaces one variant's body and design.
func (s *Store) SetContent(v Variant, html string, design []byte) {
	s.mu.Lock()
	if s.local == nil || s.closed {
		s.mu.Unlock()
		return
	}
	if v == VariantB {
		s.local.Content.HTMLB = html
		s.local.Content.DesignB = design
		s.contentDirtyB = true
	} else {
		s.local.Content.HTML = html
		s.local.Content.Design = design
		s.contentDirtyA = true
	}
	epoch := s.epoch
	changed := s.recomputeLocked()
	s.mu.Unlock()
	s.notify(changed)

	s.deb.trigger(facetContent, func() { s.flushContent(epoch) })
}

// CopyContent duplicates one variant's body and design onto the other side,
// writing through immediately.
func (s *Store) CopyContent(ctx context.Context, from Variant) error {
	s.mu.Lock()
	if s.local == nil {
		s.mu.Unlock()
		return nil
	}
	id := s.local.CampaignID
	epoch := s.epoch
	patch := &backend.ContentPatch{}
	if from == VariantB {
		s.local.Content.HTML = s.local.Content.HTMLB
		s.local.Content.Design = s.local.Content.DesignB
		html := s.local.Content.HTML
		patch.HTML = &html
		patch.Design = s.local.Content.Design
	} else {
		s.local.Content.HTMLB = s.local.Content.HTML
		s.local.Content.DesignB = s.local.Content.Design
		htmlB := s.local.Content.HTMLB
		patch.HTMLB = &htmlB
		patch.DesignB = s.local.Content.DesignB
	}
	s.mu.Unlock()

	ct, err := s.backend.UpdateContent(ctx, id, patch)
	if err != nil {
		s.metrics.AutosaveWritesTotal.WithLabelValues(facetContent, "error").Inc()
		return err
	}
	s.metrics.AutosaveWritesTotal.WithLabelValues(facetContent, "ok").Inc()
	s.applyPersistedContent(epoch, ct)
	return nil
}

// flushSendInfo writes the whole send-metadata facet; successive edits inside
// the debounce window collapse into this one call (last write wins).
func (s *Store) flushSendInfo(epoch uint64) {
	s.mu.Lock()
	if s.local == nil || s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	id := s.local.CampaignID
	si := s.local.SendInfo
	s.mu.Unlock()

	abType := int(si.ABType)
	ratio := si.EffectiveTestRatio()
	unit := string(si.DelayUnit)
	unitB := string(si.DelayUnitB)
	patch := &backend.SendInfoPatch{
		ABTest:      si.ABTest,
		ABType:      &abType,
		TestRatio:   &ratio,
		DailyUnit:   &unit,
		DailyValue:  &si.DelayValue,
		DailyUnitB:  &unitB,
		DailyValueB: &si.DelayValueB,
		Subject:     &si.Subject,
		SubjectB:    &si.SubjectB,
		SenderName:  &si.SenderName,
		SenderNameB: &si.SenderNameB,
		SenderEmail: &si.SenderEmail,
		PreviewText: &si.PreviewText,
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
	defer cancel()

	saved, err := s.backend.UpdateSendInfo(ctx, id, patch)
	if err != nil {
		// Local state is deliberately not rolled back; the next edit retries.
		s.metrics.AutosaveWritesTotal.WithLabelValues(facetSendInfo, "error").Inc()
		s.logger.Error("autosave failed", "facet", facetSendInfo, "campaign_id", id, "error", err)
		return
	}
	s.metrics.AutosaveWritesTotal.WithLabelValues(facetSendInfo, "ok").Inc()

	s.mu.Lock()
	var changed bool
	if s.epoch == epoch && s.local != nil {
		s.persisted.SendInfo = campaign.SendInfo{
			ABTest:      saved.ABTest,
			ABType:      s.persisted.SendInfo.ABType,
			TestRatio:   s.persisted.SendInfo.TestRatio,
			DelayUnit:   s.persisted.SendInfo.DelayUnit,
			DelayValue:  s.persisted.SendInfo.DelayValue,
			DelayUnitB:  s.persisted.SendInfo.DelayUnitB,
			DelayValueB: s.persisted.SendInfo.DelayValueB,
			Subject:     saved.Subject,
			SubjectB:    saved.SubjectB,
			SenderName:  saved.SenderName,
			SenderNameB: saved.SenderNameB,
			SenderEmail: saved.SenderEmail,
			PreviewText: saved.PreviewText,
		}
		if saved.ABType != nil {
			s.persisted.SendInfo.ABType = campaign.ABType(*saved.ABType)
		}
		if saved.TestRatio != nil {
			s.persisted.SendInfo.TestRatio = *saved.TestRatio
		}
		if saved.DailyUnit != nil {
			s.persisted.SendInfo.DelayUnit = campaign.DelayUnit(*saved.DailyUnit)
		}
		if saved.DailyValue != nil {
			s.persisted.SendInfo.DelayValue = *saved.DailyValue
		}
		if saved.DailyUnitB != nil {
			s.persisted.SendInfo.DelayUnitB = campaign.DelayUnit(*saved.DailyUnitB)
		}
		if saved.DailyValueB != nil {
			s.persisted.SendInfo.DelayValueB = *saved.DailyValueB
		}
		changed = s.recomputeLocked()
	}
	s.mu.Unlock()
	s.notify(changed)
}

func (s *Store) flushContent(epoch uint64) {
	s.mu.Lock()
	if s.local == nil || s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	id := s.local.CampaignID
	patch := &backend.ContentPatch{}
	if s.contentDirtyA {
		html := s.local.Content.HTML
		patch.HTML = &html
		patch.Design = s.local.Content.Design
	}
	if s.contentDirtyB {
		htmlB := s.local.Content.HTMLB
		patch.HTMLB = &htmlB
		patch.DesignB = s.local.Content.DesignB
	}
	s.contentDirtyA, s.contentDirtyB = false, false
	s.mu.Unlock()

	if patch.HTML == nil && patch.HTMLB == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
	defer cancel()

	saved, err := s.backend.UpdateContent(ctx, id, patch)
	if err != nil {
		s.metrics.AutosaveWritesTotal.WithLabelValues(facetContent, "error").Inc()
		s.logger.Error("autosave failed", "facet", facetContent, "campaign_id", id, "error", err)
		return
	}
	s.metrics.AutosaveWritesTotal.WithLabelValues(facetContent, "ok").Inc()
	s.applyPersistedContent(epoch, saved)
}

func (s *Store) applyPersistedContent(epoch uint64, ct *backend.Content) {
	s.mu.Lock()
	var changed bool
	if s.epoch == epoch && s.local != nil {
		s.persisted.Content = campaign.Content{
			HTML:    ct.HTML,
			Design:  ct.Design,
			HTMLB:   ct.HTMLB,
			DesignB: ct.DesignB,
		}
		changed = s.recomputeLocked()
	}
	s.mu.Unlock()
	s.notify(changed)
}

// recomputeLocked re-runs the completion predicates over the persisted
// snapshot. Caller holds s.mu. Returns whether the flags changed.
func (s *Store) recomputeLocked() bool {
	next := campaign.Evaluate(s.persisted)
	if next == s.completion {
		return false
	}
	s.completion = next
	return true
}

func (s *Store) notify(changed bool) {
	if !changed {
		return
	}
	s.mu.Lock()
	fn := s.onCompletion
	c := s.completion
	s.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}

// Close cancels pending debounce timers. Writes already in flight are left to
// finish.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.deb.cancelAll()
}
