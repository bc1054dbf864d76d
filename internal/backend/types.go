package backend

import "encoding/json"

// Campaign is the campaign resource as served by the mailstorm API.
type Campaign struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	GroupID *int64 `json:"groupId"`
}

// CampaignStatus is the preview-time status view of a campaign.
type CampaignStatus struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	GroupID   *int64 `json:"groupId"`
	GroupName string `json:"groupName"`
}

// Group is an address book entry.
type Group struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// SendInfo is the send-metadata resource. Pointer fields distinguish "never
// recorded" from zero values so the composer can apply its own defaults.
type SendInfo struct {
	ABTest      *bool   `json:"abTest"`
	ABType      *int    `json:"abType"`
	TestRatio   *int    `json:"testRatio"`
	DailyUnit   *string `json:"dailyUnit"`
	DailyValue  *int    `json:"dailyValue"`
	DailyUnitB  *string `json:"dailyUnitB"`
	DailyValueB *int    `json:"dailyValueB"`
	Subject     string  `json:"subject"`
	SubjectB    string  `json:"subjectB"`
	SenderName  string  `json:"senderName"`
	SenderNameB string  `json:"senderNameB"`
	SenderEmail string  `json:"senderEmail"`
	PreviewText string  `json:"previewText"`
}

// SendInfoPatch is a partial update; nil fields are left untouched by the
// server.
type SendInfoPatch struct {
	ABTest      *bool   `json:"abTest,omitempty"`
	ABType      *int    `json:"abType,omitempty"`
	TestRatio   *int    `json:"testRatio,omitempty"`
	DailyUnit   *string `json:"dailyUnit,omitempty"`
	DailyValue  *int    `json:"dailyValue,omitempty"`
	DailyUnitB  *string `json:"dailyUnitB,omitempty"`
	DailyValueB *int    `json:"dailyValueB,omitempty"`
	Subject     *string `json:"subject,omitempty"`
	SubjectB    *string `json:"subjectB,omitempty"`
	SenderName  *string `json:"senderName,omitempty"`
	SenderNameB *string `json:"senderNameB,omitempty"`
	SenderEmail *string `json:"senderEmail,omitempty"`
	PreviewText *string `json:"previewText,omitempty"`
}

// Content is the content resource. Design documents are opaque to the
// composer.
type Content struct {
	HTML    string          `json:"html"`
	Design  json.RawMessage `json:"design"`
	HTMLB   string          `json:"htmlB"`
	DesignB json.RawMessage `json:"designB"`
}

// ContentPatch is a partial content update.
type ContentPatch struct {
	HTML    *string         `json:"html,omitempty"`
	Design  json.RawMessage `json:"design,omitempty"`
	HTMLB   *string         `json:"htmlB,omitempty"`
	DesignB json.RawMessage `json:"designB,omitempty"`
}

// Send types on the dispatch endpoint.
const (
	SendTypeImmediate = "S"
	SendTypeScheduled = "B"
)

// SendRequest is the body for POST /mail/send. ExecuteAt carries the reserved
// instant; Execute2At carries the second cohort's instant for schedule tests.
type SendRequest struct {
	CampaignID int64  `json:"campaignId"`
	Type       string `json:"type"`
	ExecuteAt  string `json:"executeAt,omitempty"`
	Execute2At string `json:"execute2At,omitempty"`
}

// ErrorResponse is the API error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
