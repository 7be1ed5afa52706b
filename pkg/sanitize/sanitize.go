// Package sanitize detects dangerous command, injection, and traversal
// shapes in user input. Every function is pure: no I/O, no state, same
// verdict for the same input.
package sanitize

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// SanitizeInput trims the input and reports pattern warnings.
// Dangerous-command hits are prefixed "Dangerous pattern detected" so
// the middleware can elevate them to policy violations; SQL-injection
// motifs come back as plain warnings.
func SanitizeInput(input string) (string, []string) {
	trimmed := strings.TrimSpace(input)

	var warnings []string
	for _, p := range dangerousCommands {
		if p.regex.MatchString(trimmed) {
			warnings = append(warnings, fmt.Sprintf("%s: %s", dangerPrefix, p.name))
		}
	}
	for _, p := range sqlInjection {
		if p.regex.MatchString(trimmed) {
			warnings = append(warnings, "Possible SQL injection: "+p.name)
		}
	}
	return trimmed, warnings
}

// ValidatePath rejects traversal sequences (plain or URL-encoded) and
// paths resolving under protected system directories.
func ValidatePath(p string) (bool, string) {
	if strings.TrimSpace(p) == "" {
		return false, "path is empty"
	}
	if pathTraversal.MatchString(p) {
		return false, "path contains a traversal sequence"
	}

	decoded := p
	if unescaped, err := url.PathUnescape(p); err == nil {
		decoded = unescaped
	}
	if pathTraversal.MatchString(decoded) {
		return false, "path contains an encoded traversal sequence"
	}

	cleaned := path.Clean(strings.ReplaceAll(decoded, "\\", "/"))
	for _, prefix := range systemPathPrefixes {
		if cleaned == prefix || strings.HasPrefix(cleaned, prefix+"/") {
			return false, "path resolves under protected directory " + prefix
		}
	}
	return true, ""
}

// ValidateURL accepts absolute http(s) URLs with a host, rejecting
// known shortener and redirector domains.
func ValidateURL(raw string) (bool, string) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false, "URL does not parse"
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false, "URL scheme must be http or https"
	}
	if u.Host == "" {
		return false, "URL has no host"
	}
	host := strings.ToLower(u.Hostname())
	if redirectorHosts[host] {
		return false, "URL uses a known redirector domain"
	}
	return true, ""
}

// SanitizeFilename reduces a name to a safe basename: separators and
// parent references stripped, unsafe characters replaced with '_', and
// the result capped at 255 bytes with the extension preserved.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	name = strings.ReplaceAll(name, "..", "")
	name = safeFilenameChar.ReplaceAllString(name, "_")
	if name == "" || name == "." || name == "/" {
		return "unnamed"
	}

	const maxLen = 255
	if len(name) > maxLen {
		ext := path.Ext(name)
		if len(ext) >= maxLen {
			ext = ""
		}
		name = name[:maxLen-len(ext)] + ext
	}
	return name
}

// QuoteShellArg wraps a value in POSIX single quotes so it passes
// through a shell as one literal word.
func QuoteShellArg(arg string) string {
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}
