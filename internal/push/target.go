package push

import (
	"context"
	"fmt"
	"io"

	"multipush/internal/model"
)

// Target is the upload destination abstraction. One Target instance is bound
// to one account's credential; the app builds a Target per configured account.
// All operations stream via io.Reader to support large files without loading
// them entirely into memory.
type Target interface {
	// PutContent writes payload at the given remote path. The operation must
	// be an idempotent overwrite: re-uploading the same path is safe.
	// size is the number of bytes that will be read from r; -1 when unknown.
	// On failure the returned error is an *UploadError when the target could
	// classify the outcome.
	PutContent(ctx context.Context, path string, r io.Reader, size int64) (*PutResult, error)

	// ValidateSetup verifies that the target is reachable and properly configured.
	ValidateSetup(ctx context.Context) error
}

// PutResult carries the status and, when the target reported it, rate-limit
// telemetry from a completed write.
type PutResult struct {
	StatusCode int
	RateLimit  *model.RateLimit
}

// UploadError is a classified upload failure. Targets wrap their protocol
// errors in this type so workers can apply the retry policy without knowing
// the wire details.
type UploadError struct {
	Kind       model.ErrorKind
	StatusCode int
	Message    string
	RateLimit  *model.RateLimit // telemetry from the failed response, if any
}

func (e *UploadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}
