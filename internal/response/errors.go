package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// Authentication
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"
	ErrForbidden          ErrCode = "FORBIDDEN"

	// Validation
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrInvalidAction  ErrCode = "INVALID_ACTION"

	// Resources
	ErrNotFound        ErrCode = "NOT_FOUND"
	ErrExamNotFound    ErrCode = "EXAM_NOT_FOUND"
	ErrAttemptNotFound ErrCode = "ATTEMPT_NOT_FOUND"

	// Attempt lifecycle
	ErrNoQuestions       ErrCode = "NO_QUESTIONS"
	ErrAttemptSubmitted  ErrCode = "ATTEMPT_SUBMITTED"
	ErrAttemptInProgress ErrCode = "ATTEMPT_IN_PROGRESS"
	ErrAttemptClosed     ErrCode = "ATTEMPT_CLOSED"

	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	ErrInternal ErrCode = "INTERNAL_ERROR"
)

var messages = map[ErrCode]string{
	ErrInvalidCredentials: "Email or password is incorrect.",
	ErrSessionInvalidated: "Your session has ended. Please sign in again.",
	ErrTokenRequired:      "An authentication token is required.",
	ErrTokenInvalid:       "The authentication token is invalid.",
	ErrTokenExpired:       "The authentication token has expired.",
	ErrForbidden:          "You do not have access to this resource.",

	ErrValidation:     "Validation failed. Please check your input.",
	ErrInvalidID:      "Invalid ID format.",
	ErrInvalidPayload: "Invalid request payload.",
	ErrInvalidAction:  "Unknown exam action.",

	ErrNotFound:        "Resource not found.",
	ErrExamNotFound:    "Exam not found.",
	ErrAttemptNotFound: "Attempt not found.",

	ErrNoQuestions:       "This exam has no questions to draw from.",
	ErrAttemptSubmitted:  "This attempt has already been submitted.",
	ErrAttemptInProgress: "Results are available once the attempt is submitted.",
	ErrAttemptClosed:     "This attempt is no longer live. Start a new attempt to continue.",

	ErrRateLimitExceeded: "Too many requests. Please try again later.",

	ErrInternal: "An internal server error occurred.",
}

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	if msg, ok := messages[code]; ok {
		return msg
	}
	return "An unexpected error occurred."
}
