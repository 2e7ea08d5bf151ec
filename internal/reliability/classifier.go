package reliability

// IsRetryableHTTPStatus classifies retryable HTTP status codes. Command
// failures with a retryable status stay eligible for a manual retry;
// everything else is abandoned.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
