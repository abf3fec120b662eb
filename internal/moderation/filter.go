package moderation

// RequestFilter narrows a request listing. Zero fields match everything.
type RequestFilter struct {
	Type        OrgType `json:"type,omitempty"`
	Status      Status  `json:"status,omitempty"`
	SubmitterID string  `json:"user_id,omitempty"`
}

// Match reports whether r passes the filter.
func (f RequestFilter) Match(r Request) bool {
	if f.Type != "" && r.Type != f.Type {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.SubmitterID != "" && r.Submitter.ID != f.SubmitterID {
		return false
	}
	return true
}

// Filter returns the requests matching f in their original order.
func Filter(requests []Request, f RequestFilter) []Request {
	out := make([]Request, 0, len(requests))
	for _, r := range requests {
		if f.Match(r) {
			out = append(out, r.clone())
		}
	}
	return out
}

// Counts holds pending totals, overall and per organization type.
type Counts struct {
	All     int `json:"all"`
	Shop    int `json:"shop"`
	Service int `json:"service"`
	School  int `json:"school"`
}

// PendingCounts tallies the requests still awaiting a decision.
func PendingCounts(requests []Request) Counts {
	var c Counts
	for _, r := range requests {
		if r.Status != StatusPending {
			continue
		}
		c.All++
		switch r.Type {
		case OrgShop:
			c.Shop++
		case OrgService:
			c.Service++
		case OrgSchool:
			c.School++
		}
	}
	return c
}
