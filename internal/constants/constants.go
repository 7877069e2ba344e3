package constants

const (
	// ContextKeyUserID is the session and gin context key for the authenticated user id
	ContextKeyUserID = "user_id"
	// ContextKeyUsername is the session and gin context key for the authenticated username
	ContextKeyUsername = "username"
	// ContextKeyRequestID is the gin context key for the request id
	ContextKeyRequestID = "request_id"

	SessionCookieName = "datarecord_session"
	BasicAuthRealm    = "datarecord"
	RequestIDHeader   = "X-Request-ID"

	MinEmailLength = 3
)
