package clientreport

// DiscardReason represents why an item was discarded.
type DiscardReason string

const (
	// ReasonQueueOverflow indicates the background queue was full.
	ReasonQueueOverflow DiscardReason = "queue_overflow"

	// ReasonQueueClosed indicates the background queue no longer accepts items.
	ReasonQueueClosed DiscardReason = "queue_closed"

	// ReasonRateLimitBackoff indicates the item was dropped due to rate limiting.
	ReasonRateLimitBackoff DiscardReason = "ratelimit_backoff"

	// ReasonBeforeSend indicates the item was dropped by a BeforeSend callback.
	ReasonBeforeSend DiscardReason = "before_send"

	// ReasonSampleRate indicates the item was dropped due to sampling.
	ReasonSampleRate DiscardReason = "sample_rate"

	// ReasonNetworkError indicates an HTTP request failed (connection error).
	ReasonNetworkError DiscardReason = "network_error"

	// ReasonSendError indicates HTTP returned an error status (4xx, 5xx).
	ReasonSendError DiscardReason = "send_error"

	// ReasonInternalError indicates an internal SDK error, such as a payload
	// that could not be serialized.
	ReasonInternalError DiscardReason = "internal_sdk_error"
)
