package errx

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// RemoteError is the canonical error envelope crossing the RPC boundary.
// Internal exception shapes never leak; callers always see this.
type RemoteError struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	ErrorText  string `json:"error"`
}

func (e *RemoteError) Error() string { return e.Message }

// Is lets errors.Is match remote errors against the sentinel values below by
// status and message rather than pointer identity, since remote errors are
// decoded fresh off the wire.
func (e *RemoteError) Is(target error) bool {
	t, ok := target.(*RemoteError)
	if !ok {
		return false
	}
	return e.StatusCode == t.StatusCode && e.Message == t.Message
}

// Sentinels used by business logic. Their texts are load-bearing: the
// translation gate classifies by message content (see Translate).
var (
	ErrUserNotFound       = errors.New("User not found")
	ErrInvalidCredentials = errors.New("Invalid credentials")
)

// Authorization-class rejections produced by the identity gate. They are
// already in canonical form so they cross the boundary unchanged.
var (
	ErrMissingCredential = &RemoteError{StatusCode: 401, Message: "No authorization token provided", ErrorText: "Unauthorized"}
	ErrInvalidCredential = &RemoteError{StatusCode: 401, Message: "Invalid or expired token", ErrorText: "Unauthorized"}
)

// ValidationError carries field-level validation messages. Translate joins
// them into a single 400 message.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	if len(e.Messages) == 0 {
		return "Validation failed"
	}
	return strings.Join(e.Messages, ", ")
}

// Translate classifies any internal failure into exactly one canonical
// outbound shape. Checks are ordered and first-match-wins; database-class
// signals are checked before not-found so a message matching both resolves
// to 409. The substring matching mirrors the historical boundary filter and
// must not be "fixed" without coordinating both sides of the wire.
func Translate(err error) *RemoteError {
	if err == nil {
		return nil
	}

	msg := err.Error()

	var pgErr *pgconn.PgError
	if (errors.As(err, &pgErr) && pgErr.Code == "23505") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint") {
		return &RemoteError{StatusCode: 409, Message: "Email or username already exists", ErrorText: "Conflict"}
	}

	if strings.Contains(msg, "User not found") {
		return &RemoteError{StatusCode: 404, Message: "User not found", ErrorText: "Not Found"}
	}

	if strings.Contains(msg, "Invalid credentials") {
		return &RemoteError{StatusCode: 401, Message: "Invalid credentials", ErrorText: "Unauthorized"}
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return &RemoteError{StatusCode: 400, Message: vErr.Error(), ErrorText: "Bad Request"}
	}

	// Errors already in canonical form pass through untouched, so a remote
	// failure relayed by the gateway is not re-wrapped into a 500.
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote
	}

	if strings.TrimSpace(msg) != "" {
		return &RemoteError{StatusCode: 500, Message: msg, ErrorText: "Internal Server Error"}
	}
	return &RemoteError{StatusCode: 500, Message: "Internal server error", ErrorText: "Internal Server Error"}
}
