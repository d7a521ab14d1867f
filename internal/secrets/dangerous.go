package secrets

import (
	"path/filepath"
	"regexp"
)

// dangerousFilePatterns match base names of files that commonly hold
// credentials. They are never loaded into agent context.
var dangerousFilePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\.env($|\..*)`),
	regexp.MustCompile(`(?i)\.env$`),
	regexp.MustCompile(`(?i)^credentials\.json$`),
	regexp.MustCompile(`(?i)^service[_-]?account.*\.json$`),
	regexp.MustCompile(`(?i)\.(pem|key|p12|pfx|keystore|jks)$`),
	regexp.MustCompile(`(?i)^id_(rsa|dsa|ecdsa|ed25519)`),
	regexp.MustCompile(`(?i)^\.(npmrc|pypirc|netrc|htpasswd|pgpass)$`),
}

// IsDangerousFile reports whether path names a file that must not be read
// into agent context.
func IsDangerousFile(path string) bool {
	base := filepath.Base(path)
	for _, re := range dangerousFilePatterns {
		if re.MatchString(base) {
			return true
		}
	}
	return false
}
