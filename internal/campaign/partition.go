package campaign

// Split is the outcome of dividing an audience for an A/B test. Remainder is
// the production group that receives the winning version afterwards.
type Split struct {
	GroupA    int `json:"group_a"`
	GroupB    int `json:"group_b"`
	Remainder int `json:"remainder"`
}

// Partition divides total recipients between the two test cohorts and the
// production group. In schedule mode the whole audience is split in two and
// there is no production group. Odd counts always give the extra recipient to
// group B.
func Partition(total, ratioPercent int, scheduleMode bool) Split {
	if total < 0 {
		total = 0
	}

	if scheduleMode {
		a := total / 2
		return Split{GroupA: a, GroupB: total - a}
	}

	testTotal := total * ratioPercent / 100
	a := testTotal / 2
	return Split{
		GroupA:    a,
		GroupB:    testTotal - a,
		Remainder: total - testTotal,
	}
}

// PartitionDraft partitions the draft's current recipient snapshot using its
// effective test ratio. Without an active test everything stays in the
// production group.
func PartitionDraft(d *Draft) Split {
	si := d.SendInfo
	if !si.ABEnabled() {
		return Split{Remainder: d.RecipientCount}
	}
	return Partition(d.RecipientCount, si.EffectiveTestRatio(), si.ABType == ABTypeSchedule)
}
