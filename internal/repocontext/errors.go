package repocontext

import "errors"

// ErrRepoUnreadable indicates the repository path is missing, not a
// directory or cannot be listed.
var ErrRepoUnreadable = errors.New("repository unreadable")
