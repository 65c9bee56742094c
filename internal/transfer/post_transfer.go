package transfer

// ScheduleRequest is the operator-facing payload for queueing a post. The
// publish time is assigned by the slot calculator, never by the caller.
type ScheduleRequest struct {
	Platform   string `json:"platform"`
	AccountRef string `json:"account_ref"`
	Caption    string `json:"caption"`
}

type RescheduleRequest struct {
	ID      int64  `json:"id"`
	NewTime string `json:"new_time"`
}

type RetryRequest struct {
	ID      int64  `json:"id"`
	NewTime string `json:"new_time,omitempty"`
}

type CancelRequest struct {
	ID int64 `json:"id"`
}
