package guard

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ProcessExecutionError reports a refused process execution.
type ProcessExecutionError struct {
	Command string
	Matched string
	Reason  string
}

// Error implements error.
func (e *ProcessExecutionError) Error() string {
	if e.Matched != "" {
		return fmt.Sprintf("process execution refused: %q matched %q: %s", e.Command, e.Matched, e.Reason)
	}
	return fmt.Sprintf("process execution refused: %q: %s", e.Command, e.Reason)
}

// ProcessPolicy validates process executions against a denylist and an
// optional allowlist. Denied tokens are matched as substrings across the
// full command line, not just the program name, so `sh -c "curl ..."` is
// caught as readily as a direct `curl`.
type ProcessPolicy struct {
	denyTokens    []string
	allowPrograms map[string]bool
}

// DefaultDenyTokens is the built-in process denylist: network tools,
// package and source-control clients, and service-management commands.
func DefaultDenyTokens() []string {
	return []string{
		// network tools
		"curl", "wget", "nc ", "netcat", "ssh", "scp", "rsync", "telnet", "ftp",
		// package managers
		"pip install", "pip3 install", "npm install", "npm publish",
		"apt-get", "apt ", "yum ", "dnf ", "brew ", "gem install", "go get",
		// source control
		"git push", "git pull", "git fetch", "git clone", "git remote",
		"hg push", "svn commit",
		// service and system management
		"systemctl", "service ", "launchctl", "crontab",
		"shutdown", "reboot", "mkfs", "mount ", "umount",
		"kill -9", "killall", "sudo ", "su -",
	}
}

// NewProcessPolicy creates a policy. When allowPrograms is non-empty the
// policy runs in allowlist mode: the program must appear in the list and
// the denylist still applies on top.
func NewProcessPolicy(denyTokens, allowPrograms []string) *ProcessPolicy {
	if denyTokens == nil {
		denyTokens = DefaultDenyTokens()
	}

	allow := make(map[string]bool, len(allowPrograms))
	for _, p := range allowPrograms {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			allow[p] = true
		}
	}

	lowered := make([]string, 0, len(denyTokens))
	for _, tok := range denyTokens {
		tok = strings.ToLower(tok)
		if strings.TrimSpace(tok) != "" {
			lowered = append(lowered, tok)
		}
	}

	return &ProcessPolicy{
		denyTokens:    lowered,
		allowPrograms: allow,
	}
}

// ValidateProcessExecution rejects argv when the full command line matches
// a denied token, or, in allowlist mode, when the program is not listed.
func (p *ProcessPolicy) ValidateProcessExecution(argv []string) error {
	if len(argv) == 0 {
		return &ProcessExecutionError{Reason: "empty command"}
	}

	commandLine := strings.ToLower(strings.Join(argv, " "))

	for _, tok := range p.denyTokens {
		if matchToken(commandLine, tok) {
			return &ProcessExecutionError{
				Command: strings.Join(argv, " "),
				Matched: strings.TrimSpace(tok),
				Reason:  "denied command token",
			}
		}
	}

	if len(p.allowPrograms) > 0 {
		program := strings.ToLower(filepath.Base(argv[0]))
		if !p.allowPrograms[program] {
			return &ProcessExecutionError{
				Command: strings.Join(argv, " "),
				Reason:  fmt.Sprintf("program %q is not allow-listed", program),
			}
		}
	}

	return nil
}

// matchToken matches tok as a substring of the command line. Tokens with a
// trailing space also match at end of line, so "apt " catches a bare "apt".
func matchToken(commandLine, tok string) bool {
	if strings.Contains(commandLine, tok) {
		return true
	}
	trimmed := strings.TrimRight(tok, " ")
	if trimmed != tok {
		return commandLine == trimmed || strings.HasSuffix(commandLine, " "+trimmed)
	}
	return false
}
