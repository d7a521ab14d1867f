package session

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	idTimeLayout = "2006-01-02-150405"
	maxSlugLen   = 40
	maxIDLen     = 128
)

// idNamespace scopes session UUIDs so they never collide with other v5 users.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/fyrsmithlabs/planify/sessions"))

var (
	idPattern    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}-\d{6}-[a-z0-9]+(?:-[a-z0-9]+)*-[0-9a-f]{8}$`)
	nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)
)

// NewID derives a session ID from the task, the absolute repository path and
// the creation time: YYYY-MM-DD-HHMMSS-<slug>-<8 hex>. The hex is the prefix
// of a UUIDv5 over the three inputs, so identical inputs give identical IDs.
func NewID(task, absRepoPath string, createdAt time.Time) string {
	createdAt = createdAt.UTC()
	name := task + "\x00" + absRepoPath + "\x00" + createdAt.Format(time.RFC3339Nano)
	sum := uuid.NewSHA1(idNamespace, []byte(name))
	hex := strings.ReplaceAll(sum.String(), "-", "")[:8]
	return fmt.Sprintf("%s-%s-%s", createdAt.Format(idTimeLayout), Slug(task), hex)
}

// Slug turns a task into a short lowercase identifier.
func Slug(task string) string {
	s := nonSlugChars.ReplaceAllString(strings.ToLower(task), "-")
	s = strings.Trim(s, "-")
	if len(s) > maxSlugLen {
		s = strings.TrimRight(s[:maxSlugLen], "-")
	}
	if s == "" {
		return "plan"
	}
	return s
}

// ValidateID rejects anything that is not a well-formed session ID, which
// includes every path traversal attempt.
func ValidateID(id string) error {
	if len(id) > maxIDLen || !idPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// idTime parses the timestamp prefix of a valid ID.
func idTime(id string) time.Time {
	if len(id) < len(idTimeLayout) {
		return time.Time{}
	}
	t, err := time.Parse(idTimeLayout, id[:len(idTimeLayout)])
	if err != nil {
		return time.Time{}
	}
	return t
}
