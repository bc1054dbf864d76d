package campaign

import "encoding/json"

// ABType identifies which element of a campaign an A/B test compares.
// The wire protocol encodes it as an integer (1-4); inside the composer it is
// a closed enum and every consumer switches over all four values.
type ABType int

const (
	ABTypeSubject    ABType = 1 // two subject lines
	ABTypeSenderName ABType = 2 // two sender names
	ABTypeSchedule   ABType = 3 // two send times
	ABTypeContent    ABType = 4 // two content bodies
)

// Valid reports whether t is one of the four known test types.
func (t ABType) Valid() bool {
	switch t {
	case ABTypeSubject, ABTypeSenderName, ABTypeSchedule, ABTypeContent:
		return true
	}
	return false
}

func (t ABType) String() string {
	switch t {
	case ABTypeSubject:
		return "subject"
	case ABTypeSenderName:
		return "sender_name"
	case ABTypeSchedule:
		return "schedule"
	case ABTypeContent:
		return "content"
	}
	return "unknown"
}

// DelayUnit is the unit of the winner-promotion delay.
type DelayUnit string

const (
	DelayHour DelayUnit = "H"
	DelayDay  DelayUnit = "D"
)

// SendInfo is the send-metadata facet of a draft. ABTest is a pointer because
// the server may not have recorded a choice yet; an unknown value blocks the
// A/B plan facet from completing.
type SendInfo struct {
	ABTest      *bool     `json:"ab_test"`
	ABType      ABType    `json:"ab_type"`
	TestRatio   int       `json:"test_ratio"` // percent of the audience used for the test groups
	DelayUnit   DelayUnit `json:"delay_unit"`
	DelayValue  int       `json:"delay_value"`
	DelayUnitB  DelayUnit `json:"delay_unit_b"`
	DelayValueB int       `json:"delay_value_b"`
	Subject     string    `json:"subject"`
	SubjectB    string    `json:"subject_b"`
	SenderName  string    `json:"sender_name"`
	SenderNameB string    `json:"sender_name_b"`
	SenderEmail string    `json:"sender_email"`
	PreviewText string    `json:"preview_text"`
}

// ABEnabled reports whether A/B testing is known to be on.
func (si SendInfo) ABEnabled() bool {
	return si.ABTest != nil && *si.ABTest
}

// EffectiveTestRatio is the ratio actually used for partitioning. A schedule
// test has no production group, so the ratio is pinned to 100 whenever that
// type is selected, regardless of what the user set before switching types and
// regardless of the on/off flag.
func (si SendInfo) EffectiveTestRatio() int {
	if si.ABType == ABTypeSchedule {
		return 100
	}
	return si.TestRatio
}

// Content is the content facet. Design holds the structured editor document
// matching HTML; the composer treats it as opaque. The B side is meaningful
// only for content-type tests.
type Content struct {
	HTML    string          `json:"html"`
	Design  json.RawMessage `json:"design,omitempty"`
	HTMLB   string          `json:"html_b"`
	DesignB json.RawMessage `json:"design_b,omitempty"`
}

// Draft is the canonical in-memory representation of one campaign under
// editing. It is owned by the draft store for the lifetime of the session.
type Draft struct {
	CampaignID int64    `json:"campaign_id"`
	Name       string   `json:"name"`
	GroupID    *int64   `json:"group_id"`
	SendInfo   SendInfo `json:"send_info"`
	Content    Content  `json:"content"`

	// RecipientCount is a snapshot of the selected audience size, fetched on
	// demand. It is not part of the persisted draft.
	RecipientCount int `json:"recipient_count"`
}

// Defaults used when the server has no value recorded for a field yet.
const (
	DefaultABType     = ABTypeSubject
	DefaultDelayUnit  = DelayDay
	DefaultDelayValue = 1
	DefaultTestRatio  = 0
)
