package push

// UserRef is the payload of presence and typing events.
type UserRef struct {
	UserID string `json:"userId"`
}

// ReadAck tells a sender that count of their messages were read.
type ReadAck struct {
	ReaderID string `json:"readerId"`
	Count    int64  `json:"count"`
}

// ErrorPayload is carried by error frames and failed replies.
type ErrorPayload struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// Reply is the payload of a generic ack frame.
type Reply struct {
	Success bool          `json:"success"`
	Result  any           `json:"result,omitempty"`
	Error   *ErrorPayload `json:"error,omitempty"`
}
