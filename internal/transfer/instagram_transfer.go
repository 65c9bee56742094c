package transfer

// Graph API container statuses observed while polling.
const (
	ContainerStatusInProgress = "IN_PROGRESS"
	ContainerStatusFinished   = "FINISHED"
	ContainerStatusError      = "ERROR"
	ContainerStatusExpired    = "EXPIRED"
)

type GraphError struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	FBTraceID string `json:"fbtrace_id"`
}

type ContainerCreateResponse struct {
	ID    string      `json:"id"`
	Error *GraphError `json:"error,omitempty"`
}

type ContainerStatusResponse struct {
	StatusCode string      `json:"status_code"`
	Status     string      `json:"status"`
	Error      *GraphError `json:"error,omitempty"`
}

type MediaPublishResponse struct {
	ID    string      `json:"id"`
	Error *GraphError `json:"error,omitempty"`
}

type PermalinkResponse struct {
	Permalink string      `json:"permalink"`
	Error     *GraphError `json:"error,omitempty"`
}
