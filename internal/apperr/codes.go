package apperr

type Code string

const (
	CodeUnknown           Code = "UNKNOWN"
	CodeInvalidArgument   Code = "INVALID_ARGUMENT"
	CodeNotFound          Code = "NOT_FOUND"
	CodePermissionDenied  Code = "PERMISSION_DENIED"
	CodeUnauthenticated   Code = "UNAUTHENTICATED"
	CodeInternal          Code = "INTERNAL"
	CodeDeadlineExceeded  Code = "DEADLINE_EXCEEDED"
	CodeResourceExhausted Code = "RESOURCE_EXHAUSTED"
)

// Wire error kinds reported to connected clients on a failed send.
const (
	KindValidation       = "validation"
	KindPermissionDenied = "permission-denied"
	KindTimeout          = "timeout"
	KindPersistence      = "persistence-error"
	KindBusy             = "busy"
)
