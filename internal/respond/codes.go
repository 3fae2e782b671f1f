package respond

// Machine-readable error codes. Clients branch on these: TOKEN_EXPIRED
// triggers a silent refresh while INVALID_TOKEN forces re-login, so the
// distinction must never collapse.
const (
	CodeTokenRequired        = "TOKEN_REQUIRED"
	CodeInvalidToken         = "INVALID_TOKEN"
	CodeTokenExpired         = "TOKEN_EXPIRED"
	CodeUserNotFound         = "USER_NOT_FOUND"
	CodeAccountInactive      = "ACCOUNT_INACTIVE"
	CodeAccountLocked        = "ACCOUNT_LOCKED"
	CodeAuthRequired         = "AUTH_REQUIRED"
	CodeInsufficientPerms    = "INSUFFICIENT_PERMISSIONS"
	CodeRefreshTokenRequired = "REFRESH_TOKEN_REQUIRED"
	CodeInvalidRefreshToken  = "INVALID_REFRESH_TOKEN"
	CodeRefreshTokenExpired  = "REFRESH_TOKEN_EXPIRED"
	CodeRateLimitExceeded    = "RATE_LIMIT_EXCEEDED"

	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeEmailTaken         = "EMAIL_TAKEN"
	CodeValidationError    = "VALIDATION_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeUploadFailed       = "UPLOAD_FAILED"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)
