package transfer

// Media processing states reported by the chunked upload STATUS command.
const (
	MediaStatePending    = "pending"
	MediaStateInProgress = "in_progress"
	MediaStateSucceeded  = "succeeded"
	MediaStateFailed     = "failed"
)

type MediaProcessingError struct {
	Code    int    `json:"code"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

type MediaProcessingInfo struct {
	State          string                `json:"state"`
	CheckAfterSecs int                   `json:"check_after_secs"`
	ProgressPct    int                   `json:"progress_percent"`
	Error          *MediaProcessingError `json:"error,omitempty"`
}

type MediaUploadResponse struct {
	MediaID        int64                `json:"media_id"`
	MediaIDString  string               `json:"media_id_string"`
	ProcessingInfo *MediaProcessingInfo `json:"processing_info,omitempty"`
}

type TweetMedia struct {
	MediaIDs []string `json:"media_ids"`
}

type TweetRequest struct {
	Text  string      `json:"text"`
	Media *TweetMedia `json:"media,omitempty"`
}

type TweetData struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type TweetResponse struct {
	Data TweetData `json:"data"`
}

type TwitterAPIError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

type TwitterErrorResponse struct {
	Errors []TwitterAPIError `json:"errors"`
	Title  string            `json:"title"`
	Detail string            `json:"detail"`
}
