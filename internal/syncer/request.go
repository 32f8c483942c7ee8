package syncer

import "time"

// Default values applied by BuildFetchRequest when the caller leaves a
// field unset.
const (
	// DefaultOrderBy requests oldest-first ordering from the aggregator.
	DefaultOrderBy = "0"

	// defaultLookbackYears bounds a first-ever sync's history request.
	defaultLookbackYears = 2
)

// SyncRequest carries the caller's optional overrides for one sync
// invocation. A nil SyncRequest means "all accounts of the member with
// all defaults". Nil date fields are filled from the incremental window
// or the builder defaults. Transient; never persisted.
type SyncRequest struct {
	AccountNumber string
	StartDate     *time.Time
	EndDate       *time.Time
	OrderBy       string
}

// FetchRequest is the fully-resolved request sent to the aggregator.
// Every field is set.
type FetchRequest struct {
	AccountNumber string
	StartDate     time.Time
	EndDate       time.Time
	OrderBy       string
}

// BuildFetchRequest assembles the final fetch request from the account
// and the caller's overrides. The account number always comes from the
// account itself; caller-supplied dates and ordering are kept as-is and
// only absent fields receive defaults: start = now minus two years,
// end = today, order = oldest-first. Pure; no clock is read beyond now.
func BuildFetchRequest(account string, req *SyncRequest, now time.Time) FetchRequest {
	out := FetchRequest{
		AccountNumber: account,
		StartDate:     truncateToDay(now).AddDate(-defaultLookbackYears, 0, 0),
		EndDate:       truncateToDay(now),
		OrderBy:       DefaultOrderBy,
	}
	if req == nil {
		return out
	}
	if req.StartDate != nil {
		out.StartDate = truncateToDay(*req.StartDate)
	}
	if req.EndDate != nil {
		out.EndDate = truncateToDay(*req.EndDate)
	}
	if req.OrderBy != "" {
		out.OrderBy = req.OrderBy
	}
	return out
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
