package model

// Setting is one persisted key/value configuration slot.
type Setting struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	UpdatedAt int64  `json:"updatedAt"`
}

// SchedulerStatus is the singleton row consumed by clients for the
// "last updated at" signal.
type SchedulerStatus struct {
	LastRunAt        *int64 `json:"lastRunAt,omitempty"`
	StoriesFetched   int    `json:"storiesFetched"`
	TitlesTranslated int    `json:"titlesTranslated"`
	UpdatedAt        int64  `json:"updatedAt"`
}
