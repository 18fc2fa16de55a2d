package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired       ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid        ErrCode = "TOKEN_INVALID"
	ErrTokenExpired        ErrCode = "TOKEN_EXPIRED"
	ErrCandidateAccessOnly ErrCode = "CANDIDATE_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation        ErrCode = "VALIDATION_ERROR"
	ErrInvalidPayload    ErrCode = "INVALID_PAYLOAD"
	ErrInvalidMode       ErrCode = "INVALID_MODE"
	ErrUnsupportedAction ErrCode = "UNSUPPORTED_ACTION"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound        ErrCode = "NOT_FOUND"
	ErrExamNotFound    ErrCode = "EXAM_NOT_FOUND"
	ErrSessionNotFound ErrCode = "SESSION_NOT_FOUND"

	// ─── Session ───────────────────────────────────────────────────────
	ErrSessionActive      ErrCode = "SESSION_ALREADY_ACTIVE"
	ErrSessionClosed      ErrCode = "SESSION_CLOSED"
	ErrEmptyPool          ErrCode = "EMPTY_POOL"
	ErrSubmissionInFlight ErrCode = "SUBMISSION_IN_FLIGHT"
	ErrAlreadySubmitted   ErrCode = "ALREADY_SUBMITTED"
	ErrInvalidAnswer      ErrCode = "INVALID_ANSWER"
	ErrInvalidPosition    ErrCode = "INVALID_POSITION"
	ErrInvalidDialog      ErrCode = "INVALID_DIALOG"
	ErrUnknownItem        ErrCode = "UNKNOWN_ITEM"
	ErrUnknownAction      ErrCode = "UNKNOWN_EXERCISE_ACTION"
	ErrNotExercise        ErrCode = "NOT_AN_EXERCISE"
	ErrStepLocked         ErrCode = "STEP_LOCKED"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrBackendUnavailable ErrCode = "BACKEND_UNAVAILABLE"
	ErrInternal           ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid."
	case ErrTokenExpired:
		return "Authentication token has expired."
	case ErrCandidateAccessOnly:
		return "This resource is restricted to candidates."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidPayload:
		return "Invalid request payload."
	case ErrInvalidMode:
		return "Mode must be exam or simulator."
	case ErrUnsupportedAction:
		return "Unsupported message action."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrExamNotFound:
		return "Exam not found."
	case ErrSessionNotFound:
		return "No stored session for this exam and mode."

	// ─── Session ───────────────────────────────────────────────────────
	case ErrSessionActive:
		return "This session is already open in another window."
	case ErrSessionClosed:
		return "This session is closed."
	case ErrEmptyPool:
		return "This exam has no items for the selected mode."
	case ErrSubmissionInFlight:
		return "Submission in progress."
	case ErrAlreadySubmitted:
		return "This session has already been submitted."
	case ErrInvalidAnswer:
		return "Answer does not fit the question type."
	case ErrInvalidPosition:
		return "Position is out of range."
	case ErrInvalidDialog:
		return "Unknown dialog."
	case ErrUnknownItem:
		return "Item is not part of this session."
	case ErrUnknownAction:
		return "Action is not part of the current step."
	case ErrNotExercise:
		return "The current item is not an exercise."
	case ErrStepLocked:
		return "Complete the previous steps first."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrBackendUnavailable:
		return "Exam service is unavailable."
	case ErrInternal:
		return "Internal server error."
	default:
		return "An unexpected error occurred."
	}
}
