package scan

import (
	"fmt"
	"regexp"
	"strings"
)

// DangerousPatternError reports content refused because it matched the
// denylist. It carries the full flag set so callers can audit what fired.
type DangerousPatternError struct {
	Flags []Flag
}

// Error implements error.
func (e *DangerousPatternError) Error() string {
	return fmt.Sprintf("dangerous patterns detected: %s",
		strings.Join(FlagNames(e.Flags), ", "))
}

// Veto is the last independent screen before the apply step. It carries
// its own pattern set, broader than the approval-stage scanner, and
// derives its verdict solely from the proposed content. It never consults
// safety scores or earlier decisions, so a compromised upstream scorer
// cannot talk it out of a block.
type Veto struct {
	patterns []dangerousPattern
}

// NewVeto creates a veto screen with the default pattern set.
func NewVeto() *Veto {
	return &Veto{patterns: initVetoPatterns()}
}

// initVetoPatterns initializes the veto-stage denylist. It repeats the
// approval-stage categories with looser matching and adds constructs the
// first stage tolerates in context.
func initVetoPatterns() []dangerousPattern {
	patterns := initDangerousPatterns()

	extra := []dangerousPattern{
		{
			Name:        "Bare Eval Token",
			Pattern:     regexp.MustCompile(`(?i)\beval\b`),
			Category:    CategoryExecution,
			Description: "Any mention of eval in applied content",
		},
		{
			Name:        "Process Spawn Token",
			Pattern:     regexp.MustCompile(`(?i)\b(subprocess|os\.exec|syscall\.Exec|fork\s*\(|spawn)\b`),
			Category:    CategoryExecution,
			Description: "Process creation primitive in applied content",
		},
		{
			Name:        "Foreign Function Interface",
			Pattern:     regexp.MustCompile(`(?i)\b(ctypes|cffi|unsafe\.Pointer|dlopen)\b`),
			Category:    CategoryExecution,
			Description: "FFI escape hatch in applied content",
		},
		{
			Name:        "Environment Harvest",
			Pattern:     regexp.MustCompile(`(?i)(os\.environ\b|os\.Environ\s*\(|process\.env\b|printenv)`),
			Category:    CategoryNetwork,
			Description: "Bulk environment access, a common exfiltration precursor",
		},
		{
			Name:        "Credential File Read",
			Pattern:     regexp.MustCompile(`(?i)(id_rsa|\.netrc|\.npmrc|\.pgpass|keychain|credentials?\.(json|yml|yaml))`),
			Category:    CategoryFilesystem,
			Description: "Reference to a credential store file",
		},
		{
			Name:        "Hex Escape Run",
			Pattern:     regexp.MustCompile(`(\\x[0-9a-fA-F]{2}){4,}`),
			Category:    CategoryObfuscation,
			Description: "Long hexadecimal escape sequence",
		},
		{
			Name:        "Compressed Payload Decode",
			Pattern:     regexp.MustCompile(`(?i)(zlib\.decompress|gzip\.decompress|bz2\.decompress)\s*\(`),
			Category:    CategoryObfuscation,
			Description: "Inline decompression of an embedded payload",
		},
	}

	return append(patterns, extra...)
}

// Check returns every veto pattern flag found in content. Any hit means
// the proposal must become emergency-blocked regardless of prior approval.
func (v *Veto) Check(content string) []Flag {
	var flags []Flag
	for _, p := range v.patterns {
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

// Enforce is Check as an error: it fails with *DangerousPatternError when
// any veto pattern matches.
func (v *Veto) Enforce(content string) error {
	if flags := v.Check(content); len(flags) > 0 {
		return &DangerousPatternError{Flags: flags}
	}
	return nil
}
