package sanitize

import "regexp"

// dangerPrefix starts every dangerous-command warning. The security
// middleware elevates any warning carrying it to a policy violation.
const dangerPrefix = "Dangerous pattern detected"

// pattern pairs a compiled regex with the name reported in warnings.
type pattern struct {
	name  string
	regex *regexp.Regexp
}

// dangerousCommands covers destructive or exfiltrating shell input.
// Compiled once at init; a compile failure is a programmer error.
var dangerousCommands = []pattern{
	{"recursive root delete", regexp.MustCompile(`(?i)\brm\s+(-[a-z]*r[a-z]*f|-[a-z]*f[a-z]*r)[a-z]*\s+(/|\*|~|\$HOME)`)},
	{"raw disk write", regexp.MustCompile(`(?i)\bdd\s+[^|;]*of=/dev/(sd|hd|nvme|vd|xvd)`)},
	{"fork bomb", regexp.MustCompile(`:\(\)\s*\{\s*:\|:\s*&\s*\}\s*;?\s*:`)},
	{"filesystem format", regexp.MustCompile(`(?i)\bmkfs(\.[a-z0-9]+)?\s+/dev/`)},
	{"secure delete", regexp.MustCompile(`(?i)\bshred\s+[^|;]*/dev/`)},
	{"destructive sudo rm", regexp.MustCompile(`(?i)\bsudo\s+rm\b`)},
	{"piped remote script", regexp.MustCompile(`(?i)\b(curl|wget)\b[^|;]*\|\s*(ba|z|da)?sh\b`)},
	{"netcat listener", regexp.MustCompile(`(?i)\b(nc|ncat|netcat)\s+[^|;]*-[a-z]*[le]`)},
	{"dev tcp redirect", regexp.MustCompile(`(?i)(>|<)\s*/dev/tcp/`)},
	{"system path write", regexp.MustCompile(`(?i)>\s*/(etc|boot)/`)},
}

// sqlInjection covers classic injection motifs. Reported as plain
// warnings, not policy violations.
var sqlInjection = []pattern{
	{"statement chaining", regexp.MustCompile(`(?i)'\s*;\s*(drop|delete|truncate|update|insert)\b`)},
	{"tautology", regexp.MustCompile(`(?i)'\s*or\s*'1'\s*=\s*'1`)},
	{"comment terminator", regexp.MustCompile(`(--|#)\s*$`)},
	{"xp_cmdshell", regexp.MustCompile(`(?i)\bxp_cmdshell\b`)},
}

// pathTraversal matches plain and URL-encoded parent-directory
// escapes.
var pathTraversal = regexp.MustCompile(`(?i)(\.\./|\.\.\\|%2e%2e%2f|%2e%2e/|\.\.%2f|%2e%2e%5c)`)

// systemPathPrefixes are directories no user-supplied path may resolve
// into.
var systemPathPrefixes = []string{"/etc", "/boot", "/sys", "/proc", "/dev"}

// redirectorHosts are URL-shortener and open-redirector domains
// rejected outright; a shortened link hides its destination from
// policy checks.
var redirectorHosts = map[string]bool{
	"bit.ly":       true,
	"tinyurl.com":  true,
	"goo.gl":       true,
	"t.co":         true,
	"is.gd":        true,
	"ow.ly":        true,
	"rb.gy":        true,
	"rebrand.ly":   true,
	"shorturl.at":  true,
	"tiny.cc":      true,
	"cutt.ly":      true,
	"redirect.com": true,
}

// safeFilenameChar keeps [A-Za-z0-9._-]; everything else becomes '_'.
var safeFilenameChar = regexp.MustCompile(`[^A-Za-z0-9._-]`)
