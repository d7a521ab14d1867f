package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/BurntSushi/toml"
)

// ProjectAllowlistFile is read from the repository root when present.
const ProjectAllowlistFile = ".gitleaks.toml"

// Allowlist contains content regex patterns excluded from redaction.
type Allowlist struct {
	Regexes []string
}

// LoadAllowlist loads and merges the project and user allowlists.
// Missing files are silently ignored. Invalid TOML or regex patterns return errors.
//
// repoPath: directory containing .gitleaks.toml (empty string to skip)
// userPath: full path to a user allowlist file (empty string to skip)
func LoadAllowlist(repoPath, userPath string) (*Allowlist, error) {
	merged := &Allowlist{Regexes: []string{}}

	var paths []string
	if repoPath != "" {
		paths = append(paths, filepath.Join(repoPath, ProjectAllowlistFile))
	}
	if userPath != "" {
		paths = append(paths, userPath)
	}

	for _, path := range paths {
		list, err := loadTOML(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		merged.Regexes = append(merged.Regexes, list.Regexes...)
	}

	return merged, nil
}

// loadTOML loads and validates a single allowlist file. Both the gitleaks
// [allowlist] table and a bare top-level regexes key are accepted.
func loadTOML(path string) (*Allowlist, error) {
	var file struct {
		Regexes   []string
		Allowlist struct {
			Regexes []string
		}
	}

	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTOML, path, err)
	}

	regexes := append(file.Allowlist.Regexes, file.Regexes...)
	for _, pattern := range regexes {
		if _, err := regexp.Compile(pattern); err != nil {
			return nil, fmt.Errorf("%w: invalid pattern '%s' in %s: %v", ErrInvalidRegex, pattern, path, err)
		}
	}

	return &Allowlist{Regexes: regexes}, nil
}
