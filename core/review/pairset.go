package review

// PairKey identifies a (submission, reviewer) pair.
type PairKey struct {
	SubmissionID int
	ReviewerID   int
}

type PairSet map[PairKey]struct{}

func NewPairSet(records ...Record) PairSet {
	set := make(PairSet, len(records))
	for _, rec := range records {
		set.Add(rec.Key())
	}
	return set
}

func (s PairSet) Add(key PairKey) { s[key] = struct{}{} }

func (s PairSet) Has(key PairKey) bool {
	_, ok := s[key]
	return ok
}
