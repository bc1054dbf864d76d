package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mailstorm/composer/internal/backend"
	"github.com/mailstorm/composer/internal/campaign"
	"github.com/mailstorm/composer/internal/draft"
	"github.com/mailstorm/composer/internal/journal"
	"github.com/mailstorm/composer/internal/metrics"
)

// fakeAPI implements both the draft store's and the orchestrator's backend
// slices against canned campaign state.
type fakeAPI struct {
	mu sync.Mutex

	abTest  bool
	abType  int
	ratio   int
	count   int
	sendErr error

	// When set, Send signals sendStarted and then blocks until sendRelease
	// is closed.
	sendStarted chan struct{}
	sendRelease chan struct{}

	statusCalls int
	sent        []*backend.SendRequest
}

func (f *fakeAPI) Campaign(ctx context.Context, id int64) (*backend.Campaign, error) {
	gid := int64(3)
	return &backend.Campaign{ID: id, Name: "launch", GroupID: &gid}, nil
}

func (f *fakeAPI) RenameCampaign(ctx context.Context, id int64, name string) error { return nil }

func (f *fakeAPI) SetCampaignGroup(ctx context.Context, id int64, groupID *int64) error { return nil }

func (f *fakeAPI) SendInfo(ctx context.Context, id int64) (*backend.SendInfo, error) {
	ab := f.abTest
	return &backend.SendInfo{
		ABTest:      &ab,
		ABType:      &f.abType,
		TestRatio:   &f.ratio,
		Subject:     "hello",
		SubjectB:    "hello there",
		SenderName:  "Team",
		SenderNameB: "The Team",
		SenderEmail: "no-reply@mail.example.com",
		PreviewText: "preview",
	}, nil
}

func (f *fakeAPI) UpdateSendInfo(ctx context.Context, id int64, p *backend.SendInfoPatch) (*backend.SendInfo, error) {
	return f.SendInfo(ctx, id)
}

func (f *fakeAPI) Content(ctx context.Context, id int64) (*backend.Content, error) {
	return &backend.Content{HTML: "<p>A</p>", HTMLB: "<p>B</p>"}, nil
}

func (f *fakeAPI) UpdateContent(ctx context.Context, id int64, p *backend.ContentPatch) (*backend.Content, error) {
	return f.Content(ctx, id)
}

func (f *fakeAPI) RecipientCount(ctx context.Context, id int64) (int, error) {
	return f.count, nil
}

func (f *fakeAPI) CampaignStatus(ctx context.Context, id int64) (*backend.CampaignStatus, error) {
	f.mu.Lock()
	f.statusCalls++
	f.mu.Unlock()
	gid := int64(3)
	return &backend.CampaignStatus{ID: id, Name: "launch", GroupID: &gid, GroupName: "subscribers"}, nil
}

func (f *fakeAPI) Send(ctx context.Context, req *backend.SendRequest) error {
	if f.sendStarted != nil {
		f.sendStarted <- struct{}{}
	}
	if f.sendRelease != nil {
		<-f.sendRelease
	}
	f.mu.Lock()
	f.sent = append(f.sent, req)
	f.mu.Unlock()
	return f.sendErr
}

type fakeNotifier struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (n *fakeNotifier) Info(msg string) {
	n.mu.Lock()
	n.infos = append(n.infos, msg)
	n.mu.Unlock()
}

func (n *fakeNotifier) Error(msg string) {
	n.mu.Lock()
	n.errors = append(n.errors, msg)
	n.mu.Unlock()
}

func newTestOrchestrator(t *testing.T, api *fakeAPI) (*Orchestrator, *draft.Store, *journal.Journal, *fakeNotifier) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()

	store := draft.New(api, logger, m, draft.Config{SenderEmail: "no-reply@mail.example.com"})
	if err := store.Load(context.Background(), 1); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("journal.Open() error = %v", err)
	}
	t.Cleanup(func() { j.Close() })

	n := &fakeNotifier{}
	o := New(store, api, j, n, logger, m, Config{NavigateDelay: 10 * time.Millisecond})
	return o, store, j, n
}

func TestOpenPreviewRequiresCompleteDraft(t *testing.T) {
	api := &fakeAPI{abTest: false, count: 100}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()
	store := draft.New(api, logger, m, draft.Config{})
	o := New(store, api, nil, nil, logger, m, Config{})

	// Nothing loaded yet.
	if _, err := o.OpenPreview(context.Background(), ModeImmediate); err != ErrNotReady {
		t.Errorf("err = %v, want ErrNotReady", err)
	}
	if api.statusCalls != 0 {
		t.Error("no network call should precede the eligibility check")
	}
}

func TestOpenPreviewAssemblesView(t *testing.T) {
	api := &fakeAPI{abTest: true, abType: int(campaign.ABTypeSubject), ratio: 50, count: 101}
	o, _, _, _ := newTestOrchestrator(t, api)

	p, err := o.OpenPreview(context.Background(), ModeScheduled)
	if err != nil {
		t.Fatalf("OpenPreview() error = %v", err)
	}
	if p.GroupName != "subscribers" {
		t.Errorf("group name = %q", p.GroupName)
	}
	if p.RecipientCount != 101 {
		t.Errorf("recipient count = %d", p.RecipientCount)
	}
	if p.Split.GroupA != 25 || p.Split.GroupB != 25 || p.Split.Remainder != 51 {
		t.Errorf("split = %+v", p.Split)
	}
	if want := "test 50%: group A 25 / group B 25, winner to 51"; p.SplitText != want {
		t.Errorf("split text = %q, want %q", p.SplitText, want)
	}
	if o.State() != StatePreviewing {
		t.Errorf("state = %v", o.State())
	}

	// Cohort B is prefilled one hour after cohort A.
	ia, err := p.ScheduleA.Instant()
	if err != nil {
		t.Fatalf("ScheduleA.Instant() error = %v", err)
	}
	ib, err := p.ScheduleB.Instant()
	if err != nil {
		t.Fatalf("ScheduleB.Instant() error = %v", err)
	}
	ta, err := time.Parse(time.RFC3339, ia)
	if err != nil {
		t.Fatal(err)
	}
	tb, err := time.Parse(time.RFC3339, ib)
	if err != nil {
		t.Fatal(err)
	}
	if tb.Sub(ta) != time.Hour {
		t.Errorf("schedule prefill gap = %v, want 1h (A %s, B %s)", tb.Sub(ta), ia, ib)
	}

	// A second flow cannot open over this one.
	if _, err := o.OpenPreview(context.Background(), ModeScheduled); err != ErrBadState {
		t.Errorf("second open err = %v, want ErrBadState", err)
	}

	o.ClosePreview()
	if o.State() != StateIdle || o.Preview() != nil {
		t.Error("close should return the flow to idle")
	}
}

func TestImmediateRefusedForScheduleTest(t *testing.T) {
	api := &fakeAPI{abTest: true, abType: int(campaign.ABTypeSchedule), ratio: 100, count: 10}
	o, _, _, _ := newTestOrchestrator(t, api)

	_, err := o.OpenPreview(context.Background(), ModeImmediate)
	if err != ErrScheduleTestImmediate {
		t.Fatalf("err = %v, want ErrScheduleTestImmediate", err)
	}
	if api.statusCalls != 0 {
		t.Error("refusal must happen before any network call")
	}
	if o.State() != StateIdle {
		t.Errorf("state = %v, want idle", o.State())
	}
}

func TestImmediateRefusedForLeftoverScheduleType(t *testing.T) {
	// The user picked a schedule test and then disabled A/B: the type stays
	// Schedule, and the refusal keys on the type alone.
	api := &fakeAPI{abTest: false, abType: int(campaign.ABTypeSchedule), count: 10}
	o, _, _, _ := newTestOrchestrator(t, api)

	_, err := o.OpenPreview(context.Background(), ModeImmediate)
	if err != ErrScheduleTestImmediate {
		t.Fatalf("err = %v, want ErrScheduleTestImmediate", err)
	}
	if api.statusCalls != 0 {
		t.Error("refusal must happen before any network call")
	}

	// A scheduled send with the leftover type still needs both instants.
	if _, err := o.OpenPreview(context.Background(), ModeScheduled); err != nil {
		t.Fatalf("OpenPreview() error = %v", err)
	}
	input := &ScheduleInput{
		A: campaign.WallClock{Date: "2025-08-20", Meridiem: campaign.PM, Hour12: 6, Minute: 0},
	}
	if err := o.Confirm(context.Background(), input); err == nil {
		t.Fatal("expected error for missing cohort B time")
	}
	input.B = &campaign.WallClock{Date: "2025-08-21", Meridiem: campaign.AM, Hour12: 9, Minute: 0}
	if err := o.Confirm(context.Background(), input); err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	if req := api.sent[0]; req.Execute2At == "" {
		t.Errorf("request = %+v, want execute2At set", req)
	}
}

func TestConcurrentConfirmsDispatchOnce(t *testing.T) {
	api := &fakeAPI{
		abTest:      false,
		count:       5,
		sendStarted: make(chan struct{}, 1),
		sendRelease: make(chan struct{}),
	}
	o, _, _, _ := newTestOrchestrator(t, api)

	if _, err := o.OpenPreview(context.Background(), ModeImmediate); err != nil {
		t.Fatalf("OpenPreview() error = %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- o.Confirm(context.Background(), nil) }()
	<-api.sendStarted

	// The first confirm holds the submission; a second one must not reach
	// the backend.
	if err := o.Confirm(context.Background(), nil); err != ErrBadState {
		t.Errorf("second confirm err = %v, want ErrBadState", err)
	}

	close(api.sendRelease)
	if err := <-errCh; err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	if len(api.sent) != 1 {
		t.Errorf("sent %d requests, want 1", len(api.sent))
	}
}

func TestConfirmImmediate(t *testing.T) {
	api := &fakeAPI{abTest: false, count: 10}
	o, _, j, n := newTestOrchestrator(t, api)

	navigated := make(chan struct{})
	o.OnNavigate(func() { close(navigated) })

	if _, err := o.OpenPreview(context.Background(), ModeImmediate); err != nil {
		t.Fatalf("OpenPreview() error = %v", err)
	}
	if err := o.Confirm(context.Background(), nil); err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}

	if o.State() != StateSucceeded {
		t.Errorf("state = %v", o.State())
	}
	if len(api.sent) != 1 {
		t.Fatalf("sent %d requests", len(api.sent))
	}
	req := api.sent[0]
	if req.Type != backend.SendTypeImmediate || req.ExecuteAt != "" || req.Execute2At != "" {
		t.Errorf("request = %+v", req)
	}
	if len(n.infos) != 1 {
		t.Errorf("infos = %v", n.infos)
	}

	entries, err := j.List(context.Background(), journal.ListFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Outcome != journal.OutcomeAccepted {
		t.Errorf("journal = %+v", entries)
	}

	select {
	case <-navigated:
	case <-time.After(time.Second):
		t.Error("navigate callback did not fire")
	}
}

func TestConfirmScheduleTest(t *testing.T) {
	api := &fakeAPI{abTest: true, abType: int(campaign.ABTypeSchedule), ratio: 100, count: 7}
	o, _, _, _ := newTestOrchestrator(t, api)

	p, err := o.OpenPreview(context.Background(), ModeScheduled)
	if err != nil {
		t.Fatalf("OpenPreview() error = %v", err)
	}
	if p.Split.GroupA != 3 || p.Split.GroupB != 4 || p.Split.Remainder != 0 {
		t.Errorf("split = %+v", p.Split)
	}

	// Missing cohort B time keeps the flow previewing.
	input := &ScheduleInput{
		A: campaign.WallClock{Date: "2025-08-20", Meridiem: campaign.PM, Hour12: 6, Minute: 0},
	}
	if err := o.Confirm(context.Background(), input); err == nil {
		t.Fatal("expected error for missing cohort B time")
	}
	if o.State() != StatePreviewing {
		t.Errorf("state = %v, want still previewing", o.State())
	}

	input.B = &campaign.WallClock{Date: "2025-08-21", Meridiem: campaign.AM, Hour12: 9, Minute: 30}
	if err := o.Confirm(context.Background(), input); err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}

	req := api.sent[0]
	if req.Type != backend.SendTypeScheduled {
		t.Errorf("type = %q", req.Type)
	}
	if req.ExecuteAt != "2025-08-20T18:00:00+09:00" {
		t.Errorf("executeAt = %q", req.ExecuteAt)
	}
	if req.Execute2At != "2025-08-21T09:30:00+09:00" {
		t.Errorf("execute2At = %q", req.Execute2At)
	}
}

func TestConfirmFailureIsTerminal(t *testing.T) {
	api := &fakeAPI{abTest: false, count: 10, sendErr: errors.New("backend unavailable")}
	o, _, j, n := newTestOrchestrator(t, api)

	navigated := make(chan struct{})
	o.OnNavigate(func() { close(navigated) })

	if _, err := o.OpenPreview(context.Background(), ModeImmediate); err != nil {
		t.Fatalf("OpenPreview() error = %v", err)
	}
	if err := o.Confirm(context.Background(), nil); err == nil {
		t.Fatal("expected send error")
	}

	if o.State() != StateFailed {
		t.Errorf("state = %v", o.State())
	}
	if len(n.errors) != 1 {
		t.Errorf("errors = %v", n.errors)
	}

	entries, err := j.List(context.Background(), journal.ListFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Outcome != journal.OutcomeRejected {
		t.Errorf("journal = %+v", entries)
	}
	if entries[0].Error == "" {
		t.Error("rejected entry should carry the error text")
	}

	// The session still leaves the editor after a failure.
	select {
	case <-navigated:
	case <-time.After(time.Second):
		t.Error("navigate callback did not fire after failure")
	}

	o.Reset()
	if o.State() != StateIdle {
		t.Errorf("state after reset = %v", o.State())
	}
}
