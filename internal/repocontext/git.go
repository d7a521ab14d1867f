package repocontext

import (
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// gitHead returns the current branch and HEAD commit of the repository
// containing path. Both are empty outside a git repository. A repository
// without commits yields the branch and an empty hash; a detached HEAD
// yields only the hash.
func gitHead(path string) (branch, head string) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", ""
	}

	ref, err := repo.Head()
	if err != nil {
		// Unborn branch: HEAD is symbolic but its target does not exist yet.
		sym, symErr := repo.Reference(plumbing.HEAD, false)
		if symErr == nil && sym.Type() == plumbing.SymbolicReference {
			return sym.Target().Short(), ""
		}
		return "", ""
	}

	if ref.Name().IsBranch() {
		return ref.Name().Short(), ref.Hash().String()
	}
	return "", ref.Hash().String()
}
