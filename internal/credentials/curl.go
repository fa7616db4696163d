package credentials

import (
	"regexp"
	"strings"
)

var curlCookiePatterns = []*regexp.Regexp{
	regexp.MustCompile(`-b\s+'([^']+)'`),
	regexp.MustCompile(`--cookie\s+'([^']+)'`),
	regexp.MustCompile(`-b\s+"([^"]+)"`),
	regexp.MustCompile(`--cookie\s+"([^"]+)"`),
	regexp.MustCompile(`(?i)-H\s+'cookie:\s*([^']+)'`),
	regexp.MustCompile(`(?i)-H\s+"cookie:\s*([^"]+)"`),
}

// ExtractCurlCookie pulls the cookie string out of a curl command copied from browser dev tools.
func ExtractCurlCookie(command string) (string, bool) {
	for _, pattern := range curlCookiePatterns {
		match := pattern.FindStringSubmatch(command)
		if len(match) < 2 {
			continue
		}
		if cookieString := strings.TrimSpace(match[1]); cookieString != "" {
			return cookieString, true
		}
	}
	return "", false
}
