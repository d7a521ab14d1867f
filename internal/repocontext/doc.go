// Package repocontext builds a bounded, read-only snapshot of a repository
// for agent prompts.
//
// A Loader walks the tree (honouring .gitignore, well-known build and
// dependency directories, include and exclude patterns), reads candidate
// files in parallel, scrubs them and fits them into a token budget. The
// project docs named in AutoDetect always come first. Watcher reports when
// the repository changed after a snapshot was taken.
package repocontext
