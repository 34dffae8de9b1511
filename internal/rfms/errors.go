// internal/rfms/errors.go
package rfms

import "fmt"

// AuthError means RFMS rejected our credentials. Fatal — retrying with the
// same store code / API key cannot succeed.
type AuthError struct {
	Op     string
	Detail string
}

func (e *AuthError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("rfms auth rejected during %s", e.Op)
	}
	return fmt.Sprintf("rfms auth rejected during %s: %s", e.Op, e.Detail)
}

// TransportError means the call never got a usable response (timeout,
// connection reset, bad envelope). Already retried with backoff before
// surfacing.
type TransportError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("rfms transport failure on %s after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ApplicationError means RFMS explicitly answered "failed" (or never left
// "waiting" within the poll budget). Terminal — the remote system rejected the
// request, the caller decides whether that is retryable.
type ApplicationError struct {
	Op      string
	Detail  string
	Waiting bool // true when the poll budget ran out on a "waiting" response
}

func (e *ApplicationError) Error() string {
	if e.Waiting {
		return fmt.Sprintf("rfms request %s still pending after poll budget exhausted", e.Op)
	}
	return fmt.Sprintf("rfms rejected %s: %s", e.Op, e.Detail)
}

// MalformedRecordError names the missing or invalid field of one remote
// record. Per-record: the sync pass skips it and keeps going.
type MalformedRecordError struct {
	DocNumber string
	JobID     string
	Field     string
	Reason    string
}

func (e *MalformedRecordError) Error() string {
	doc := e.DocNumber
	if doc == "" && e.JobID != "" {
		doc = "job " + e.JobID
	}
	if doc == "" {
		doc = "<no doc number>"
	}
	return fmt.Sprintf("malformed record %s: field %q %s", doc, e.Field, e.Reason)
}

// UnparseableDateError means a date string matched none of the known RFMS
// encodings. Never swallowed into a nil date silently.
type UnparseableDateError struct {
	Raw string
}

func (e *UnparseableDateError) Error() string {
	return fmt.Sprintf("unparseable rfms date %q", e.Raw)
}
