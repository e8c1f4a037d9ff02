// Package scan implements content-based dangerous pattern detection for
// proposed code edits. The scanner never trusts scores or flags supplied
// by upstream callers; every verdict is derived from the content itself.
package scan

import (
	"regexp"
	"strings"

	"github.com/wardenhq/warden/internal/proposal"
)

// FlagCategory groups dangerous patterns by the kind of harm they enable.
type FlagCategory string

const (
	CategoryExecution    FlagCategory = "code_execution"
	CategoryPrivilege    FlagCategory = "privilege_tampering"
	CategoryFilesystem   FlagCategory = "filesystem_destruction"
	CategoryNetwork      FlagCategory = "network_egress"
	CategoryTimeBomb     FlagCategory = "time_triggered"
	CategoryObfuscation  FlagCategory = "obfuscation"
	CategoryConfigTamper FlagCategory = "config_tampering"
	CategoryStructural   FlagCategory = "structural"
)

// Flag is a single dangerous pattern hit. Any flag from any category is
// sufficient to mark content unsafe; categories are not weighted.
type Flag struct {
	Name        string       `json:"name"`
	Category    FlagCategory `json:"category"`
	Description string       `json:"description"`
}

// dangerousPattern defines a pattern the scanner refuses to approve.
type dangerousPattern struct {
	Name        string
	Pattern     *regexp.Regexp
	Category    FlagCategory
	Description string
}

// Scanner is a stateless, content-based classifier for proposed edits.
// It is safe for concurrent use.
type Scanner struct {
	patterns []dangerousPattern
}

// NewScanner creates a scanner with the default dangerous pattern set.
func NewScanner() *Scanner {
	return &Scanner{patterns: initDangerousPatterns()}
}

// initDangerousPatterns initializes the approval-stage denylist.
func initDangerousPatterns() []dangerousPattern {
	return []dangerousPattern{
		// Code execution primitives
		{
			Name:        "Dynamic Evaluation",
			Pattern:     regexp.MustCompile(`(?i)\b(eval|exec)\s*\(`),
			Category:    CategoryExecution,
			Description: "Dynamic code evaluation has no place in an automated fix",
		},
		{
			Name:        "Shell Invocation",
			Pattern:     regexp.MustCompile(`(?i)(os\.system|subprocess\.(run|call|Popen)|popen|shell_exec|child_process|exec\.Command)\s*\(`),
			Category:    CategoryExecution,
			Description: "Shell or subprocess invocation introduced by a fix",
		},
		{
			Name:        "Dynamic Import",
			Pattern:     regexp.MustCompile(`(?i)(__import__|importlib\.import_module|getattr\s*\(\s*__builtins__)`),
			Category:    CategoryExecution,
			Description: "Dynamic module loading used to smuggle in capabilities",
		},
		// Privilege and auth tampering
		{
			Name:        "Role Assignment Literal",
			Pattern:     regexp.MustCompile(`(?i)(role|privilege|permission)s?\s*[:=]\s*["'](admin|root|superuser|all)["']`),
			Category:    CategoryPrivilege,
			Description: "Literal assignment of an elevated role or permission",
		},
		{
			Name:        "Auth Bypass Conditional",
			Pattern:     regexp.MustCompile(`(?i)if\s+.{0,60}(==|equals)\s*["'](backdoor|bypass|master|letmein|debug)["']`),
			Category:    CategoryPrivilege,
			Description: "Backdoor-style conditional comparing against a magic credential",
		},
		{
			Name:        "Auth Check Disabled",
			Pattern:     regexp.MustCompile(`(?i)(is_admin|is_authenticated|authorized|has_permission)\s*=\s*(true|True)\b`),
			Category:    CategoryPrivilege,
			Description: "Authentication or authorization check forced to true",
		},
		{
			Name:        "Sudo Grant",
			Pattern:     regexp.MustCompile(`(?i)\bsudoers?\b|\bsetuid\s*\(|\bseteuid\s*\(`),
			Category:    CategoryPrivilege,
			Description: "Process privilege escalation primitive",
		},
		// Filesystem destruction
		{
			Name:        "Recursive Delete",
			Pattern:     regexp.MustCompile(`(?i)(rm\s+-[a-z]*r[a-z]*f|rm\s+-[a-z]*f[a-z]*r|shutil\.rmtree|os\.RemoveAll|rmdir\s+/s)`),
			Category:    CategoryFilesystem,
			Description: "Recursive filesystem deletion",
		},
		{
			Name:        "Path Traversal",
			Pattern:     regexp.MustCompile(`\.\./\.\./|\.\.\\\.\.\\`),
			Category:    CategoryFilesystem,
			Description: "Repeated parent-directory traversal in a path",
		},
		{
			Name:        "Sensitive System Path",
			Pattern:     regexp.MustCompile(`(?i)(/etc/(passwd|shadow|sudoers)|[A-Z]:\\Windows\\System32|~/?\.ssh/|\.aws/credentials)`),
			Category:    CategoryFilesystem,
			Description: "Access to a sensitive system path",
		},
		{
			Name:        "Device Write",
			Pattern:     regexp.MustCompile(`(?i)(>\s*/dev/(sd[a-z]|null\s*2>&1\s*&)|dd\s+if=.*of=/dev/)`),
			Category:    CategoryFilesystem,
			Description: "Raw device write",
		},
		// Network egress in code text
		{
			Name:        "Outbound HTTP Call",
			Pattern:     regexp.MustCompile(`(?i)(requests\.(get|post|put)|urllib\.request|http\.Get|http\.Post|fetch\s*\(|axios\.|curl\s+-|wget\s+)`),
			Category:    CategoryNetwork,
			Description: "Outbound HTTP request introduced by a fix",
		},
		{
			Name:        "Raw Socket",
			Pattern:     regexp.MustCompile(`(?i)(socket\.socket\s*\(|net\.Dial\s*\(|new\s+WebSocket|nc\s+-[a-z]*e)`),
			Category:    CategoryNetwork,
			Description: "Raw socket or reverse-shell style connection",
		},
		// Time-triggered logic
		{
			Name:        "Date-Conditioned Branch",
			Pattern:     regexp.MustCompile(`(?i)if\s+.{0,80}(datetime\.(now|today)|time\.Now|Date\.now|date\s*\+?[=><])`),
			Category:    CategoryTimeBomb,
			Description: "Branch conditioned on the current date, a logic bomb shape",
		},
		{
			Name:        "Scheduled Trigger Literal",
			Pattern:     regexp.MustCompile(`(?i)(crontab|at\s+\d{1,2}:\d{2}\s+(am|pm)?|schedule\.every)`),
			Category:    CategoryTimeBomb,
			Description: "Scheduling primitive embedded in a fix",
		},
		// Obfuscation
		{
			Name:        "Character Code Construction",
			Pattern:     regexp.MustCompile(`(?i)(chr\s*\(\s*\d+\s*\)\s*\+|String\.fromCharCode|\\x[0-9a-f]{2}\\x[0-9a-f]{2})`),
			Category:    CategoryObfuscation,
			Description: "String assembled from character codes to evade inspection",
		},
		{
			Name:        "Base64 Decode",
			Pattern:     regexp.MustCompile(`(?i)(base64\.(b64decode|StdEncoding)|atob\s*\(|frombase64string)`),
			Category:    CategoryObfuscation,
			Description: "Base64 decoding of embedded content",
		},
		// Configuration tampering
		{
			Name:        "Debug Flag Enabled",
			Pattern:     regexp.MustCompile(`(?i)\bdebug\s*[:=]\s*(true|True|1)\b`),
			Category:    CategoryConfigTamper,
			Description: "Debug mode switched on",
		},
		{
			Name:        "Wildcard Host Allowlist",
			Pattern:     regexp.MustCompile(`(?i)(allowed_hosts|cors|origin)s?\s*[:=]\s*\[?\s*["']\*["']`),
			Category:    CategoryConfigTamper,
			Description: "Host or origin allowlist widened to a wildcard",
		},
		{
			Name:        "TLS Verification Disabled",
			Pattern:     regexp.MustCompile(`(?i)(InsecureSkipVerify\s*:\s*true|verify\s*=\s*False|rejectUnauthorized\s*:\s*false)`),
			Category:    CategoryConfigTamper,
			Description: "TLS certificate verification disabled",
		},
	}
}

// Scan returns every dangerous pattern flag found in content.
// Matching is content-based and case-insensitive; a nil or empty result
// means no denylisted construct was found.
func (s *Scanner) Scan(content string) []Flag {
	var flags []Flag
	for _, p := range s.patterns {
		if p.Pattern.MatchString(content) {
			flags = append(flags, Flag{
				Name:        p.Name,
				Category:    p.Category,
				Description: p.Description,
			})
		}
	}
	return flags
}

// Issue types that carry extra structural rules beyond the denylist.
const (
	IssueTypeWhitespaceCleanup = "whitespace_cleanup"
	IssueTypeTypoCorrections   = "typo_corrections"
)

// typoForeignTokens matches tokens that have no business appearing in a
// spelling fix: assignments, imports, control flow, privilege words.
var typoForeignTokens = regexp.MustCompile(
	`(?i)(:=|[^=!<>]=[^=]|\bimport\b|\bif\b|\bfor\b|\bwhile\b|\breturn\b|\badmin\b|\broot\b|\bpassword\b|\bpermission\b)`)

// ScanProposal runs the content scan plus the issue-type structural rules.
// A "cosmetic" whitespace fix must not alter non-whitespace tokens, and a
// typo correction must not introduce logic.
func (s *Scanner) ScanProposal(p *proposal.Proposal) []Flag {
	flags := s.Scan(p.ProposedContent)

	switch p.IssueType {
	case IssueTypeWhitespaceCleanup:
		if stripWhitespace(p.OriginalContent) != stripWhitespace(p.ProposedContent) {
			flags = append(flags, Flag{
				Name:        "Cosmetic Content Change",
				Category:    CategoryStructural,
				Description: "Whitespace-only fix alters non-whitespace tokens",
			})
		}
	case IssueTypeTypoCorrections:
		if typoForeignTokens.MatchString(p.ProposedContent) {
			flags = append(flags, Flag{
				Name:        "Typo Fix Contains Logic",
				Category:    CategoryStructural,
				Description: "Spelling fix introduces assignment, import, control flow, or privilege tokens",
			})
		}
	}

	return flags
}

// FlagNames returns the names of a flag set, for reports and reasons.
func FlagNames(flags []Flag) []string {
	names := make([]string, len(flags))
	for i, f := range flags {
		names[i] = f.Name
	}
	return names
}

func stripWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r', '\v', '\f':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
