package campaign

import "regexp"

// emailPattern matches local@domain.tld sender addresses.
var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

// ValidEmail reports whether addr is a syntactically valid sender address.
func ValidEmail(addr string) bool {
	return emailPattern.MatchString(addr)
}

// Completion holds the per-facet completeness flags for a draft. A draft is
// send-eligible only when all four hold at once.
type Completion struct {
	Audience bool `json:"audience"`
	Plan     bool `json:"plan"`
	SendInfo bool `json:"send_info"`
	Content  bool `json:"content"`
}

// All reports aggregate completion.
func (c Completion) All() bool {
	return c.Audience && c.Plan && c.SendInfo && c.Content
}

// Evaluate recomputes every facet predicate from scratch. It is pure and must
// be re-run after every facet mutation or reload; nothing is cached here.
func Evaluate(d *Draft) Completion {
	return Completion{
		Audience: AudienceDone(d),
		Plan:     PlanDone(d.SendInfo),
		SendInfo: SendInfoDone(d.SendInfo),
		Content:  ContentDone(d.SendInfo, d.Content),
	}
}

// AudienceDone requires an address book to be selected.
func AudienceDone(d *Draft) bool {
	return d.GroupID != nil
}

// PlanDone checks the A/B plan facet. An unknown ABTest flag blocks
// completion; a recorded "no test" completes immediately; a recorded test
// needs a valid type and a positive ratio.
func PlanDone(si SendInfo) bool {
	if si.ABTest == nil {
		return false
	}
	if !*si.ABTest {
		return true
	}
	return si.ABType.Valid() && si.EffectiveTestRatio() > 0
}

// SendInfoDone checks the send-metadata facet. The sender address and preview
// text are always required; which subject/name variants are required depends
// on the test type.
func SendInfoDone(si SendInfo) bool {
	if !ValidEmail(si.SenderEmail) || si.PreviewText == "" {
		return false
	}

	subjectA := si.Subject != ""
	nameA := si.SenderName != ""

	if !si.ABEnabled() {
		return subjectA && nameA
	}

	switch si.ABType {
	case ABTypeSubject:
		return subjectA && si.SubjectB != "" && nameA
	case ABTypeSenderName:
		return nameA && si.SenderNameB != "" && subjectA
	case ABTypeSchedule, ABTypeContent:
		// Schedule and content tests vary elsewhere; one subject and one
		// sender name are enough here.
		return subjectA && nameA
	}
	return false
}

// ContentDone requires the A body; the B body too when a content test is on.
func ContentDone(si SendInfo, c Content) bool {
	if c.HTML == "" {
		return false
	}
	if si.ABEnabled() && si.ABType == ABTypeContent {
		return c.HTMLB != ""
	}
	return true
}
