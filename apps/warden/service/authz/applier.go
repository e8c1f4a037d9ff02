package authz

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/pitabwire/util"

	"github.com/wardenhq/warden/internal/guard"
)

// FileApplier applies an approved edit by splicing the proposed content
// into the target file. An optional post-edit command, typically a
// formatter, runs against the edited file after every successful splice;
// the command line is checked against the process policy first.
type FileApplier struct {
	policy      *guard.ProcessPolicy
	postEditCmd []string
}

// NewFileApplier creates a file applier. postEditCmd may be nil.
func NewFileApplier(policy *guard.ProcessPolicy, postEditCmd []string) *FileApplier {
	return &FileApplier{
		policy:      policy,
		postEditCmd: postEditCmd,
	}
}

// Apply replaces the first occurrence of original with proposed in the
// file at canonicalPath. An empty original means the file is created or
// overwritten with the proposed content.
func (a *FileApplier) Apply(ctx context.Context, canonicalPath, original, proposed string) error {
	if original == "" {
		if err := os.WriteFile(canonicalPath, []byte(proposed), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", canonicalPath, err)
		}
		return a.postEdit(ctx, canonicalPath)
	}

	data, err := os.ReadFile(canonicalPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", canonicalPath, err)
	}

	content := string(data)
	if !strings.Contains(content, original) {
		return fmt.Errorf("original content not found in %s", canonicalPath)
	}

	updated := strings.Replace(content, original, proposed, 1)
	if err := os.WriteFile(canonicalPath, []byte(updated), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", canonicalPath, err)
	}

	return a.postEdit(ctx, canonicalPath)
}

func (a *FileApplier) postEdit(ctx context.Context, canonicalPath string) error {
	if len(a.postEditCmd) == 0 {
		return nil
	}

	argv := append(append([]string{}, a.postEditCmd...), canonicalPath)
	if err := a.policy.ValidateProcessExecution(argv); err != nil {
		return fmt.Errorf("post-edit command refused: %w", err)
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if out, err := cmd.CombinedOutput(); err != nil {
		// A formatter failure leaves the edit in place.
		util.Log(ctx).With("err", err).
			With("command", strings.Join(argv, " ")).
			With("output", string(out)).
			Warn("post-edit command failed")
	}
	return nil
}
