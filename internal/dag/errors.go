package dag

import (
	"errors"

	"github.com/warpfork/go-errcat"
)

// ErrorCategory groups every error raised by the repository core.
// Use CategoryOf or IsCategory to branch on them.
type ErrorCategory string

const (
	ErrNotFound         ErrorCategory = "mxgit-not-found"         // digest absent from the store
	ErrFileUnreadable   ErrorCategory = "mxgit-file-unreadable"   // file reader failed while staging
	ErrEmptyMessage     ErrorCategory = "mxgit-empty-message"     // commit message missing
	ErrNothingToCommit  ErrorCategory = "mxgit-nothing-to-commit" // staging index empty
	ErrCorruptHistory   ErrorCategory = "mxgit-corrupt-history"   // commit chain cannot be walked
	ErrCorruptObject    ErrorCategory = "mxgit-corrupt-object"    // stored bytes do not match their digest
	ErrInvalidPath      ErrorCategory = "mxgit-invalid-path"      // path cannot be tracked
	ErrStoreUnwritable  ErrorCategory = "mxgit-store-unwritable"  // persistence failed
	ErrNotARepository   ErrorCategory = "mxgit-not-a-repository"  // no .mxgit directory
	ErrRepositoryExists ErrorCategory = "mxgit-repository-exists" // init over an existing repository
	ErrConfigInvalid    ErrorCategory = "mxgit-config-invalid"    // config file rejected
)

// CategoryOf returns the category of the first categorised error in err's chain,
// or the empty category if there is none.
func CategoryOf(err error) ErrorCategory {
	var e errcat.Error
	if !errors.As(err, &e) {
		return ""
	}
	cat, _ := e.Category().(ErrorCategory)
	return cat
}

// IsCategory reports whether err carries the given category.
func IsCategory(err error, cat ErrorCategory) bool {
	return err != nil && CategoryOf(err) == cat
}
