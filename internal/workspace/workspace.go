// Package workspace works out sensible defaults for a project directory,
// such as the hostname to register it under.
package workspace

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-git/go-git/v5"
)

// ErrInvalidHostname is returned for names that are not a DNS label.
var ErrInvalidHostname = errors.New("invalid hostname")

var hostnameRe = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// ValidateHostname checks that name can be used as <name>.<tld>.
func ValidateHostname(name string) error {
	if !hostnameRe.MatchString(name) {
		return fmt.Errorf("%w: %q (lowercase letters, digits and hyphens, max 63)", ErrInvalidHostname, name)
	}
	return nil
}

// Root returns the top of the git worktree containing dir, or dir itself
// when it is not inside a repository.
func Root(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return dir
	}
	repo, err := git.PlainOpenWithOptions(abs, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return abs
	}
	wt, err := repo.Worktree()
	if err != nil {
		return abs
	}
	return wt.Filesystem.Root()
}

// DefaultHostname derives a hostname from the repository root (or the
// directory name outside a repository).
func DefaultHostname(dir string) string {
	return Sanitize(filepath.Base(Root(dir)))
}

// Sanitize lowercases name and replaces anything outside [a-z0-9-] with
// a hyphen.
func Sanitize(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	s := strings.Trim(b.String(), "-")
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	if len(s) > 63 {
		s = strings.TrimRight(s[:63], "-")
	}
	return s
}
