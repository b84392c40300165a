package bulk

// Per-item cost used by the estimator. External sync pays for provider latency and rate limiting.
const (
	LocalMillisPerItem = 100
	SyncMillisPerItem  = 600
)

// Estimate is a rough completion time for a batch.
type Estimate struct {
	EstimatedSeconds int `json:"estimated_seconds"`
	EstimatedMinutes int `json:"estimated_minutes"`
}

// EstimateDuration returns the expected run time of itemCount items, rounded up.
func EstimateDuration(itemCount int, includeExternalSync bool) Estimate {
	if itemCount <= 0 {
		return Estimate{}
	}

	perItem := LocalMillisPerItem
	if includeExternalSync {
		perItem = SyncMillisPerItem
	}

	seconds := (itemCount*perItem + 999) / 1000
	return Estimate{
		EstimatedSeconds: seconds,
		EstimatedMinutes: (seconds + 59) / 60,
	}
}
