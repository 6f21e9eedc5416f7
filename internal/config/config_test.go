package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testCLI struct {
	Server    string        `default:"http://localhost:5000"`
	Debug     bool          `default:"false"`
	Ephemeral bool          `name:"ephemeral"`
	StateDir  string        `name:"state-dir"`
	Timeout   time.Duration `default:"30s"`

	Serve struct {
		Listen      string   `default:"127.0.0.1:8420"`
		CORSOrigins []string `name:"cors-origins"`
	} `cmd:""`

	Whoami struct{} `cmd:""`
}

func parse(t *testing.T, yamlBody string, args ...string) (*testCLI, *kong.Context) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o600))

	var cli testCLI
	parser, err := kong.New(&cli, kong.Configuration(YAML, path), kong.Exit(func(int) { t.Fatal("unexpected exit") }))
	require.NoError(t, err)

	ctx, err := parser.Parse(args)
	require.NoError(t, err)

	return &cli, ctx
}

func TestYAML_TopLevel(t *testing.T) {
	cli, ctx := parse(t, strings.Join([]string{
		"server: https://smartschedule.example.com",
		"debug: true",
		"state_dir: /tmp/smartschedule",
		"timeout: 5s",
	}, "\n"), "whoami")

	assert.Equal(t, "whoami", ctx.Command())
	assert.Equal(t, "https://smartschedule.example.com", cli.Server)
	assert.True(t, cli.Debug)
	assert.Equal(t, "/tmp/smartschedule", cli.StateDir)
	assert.Equal(t, 5*time.Second, cli.Timeout)
}

func TestYAML_CommandSection(t *testing.T) {
	cli, _ := parse(t, strings.Join([]string{
		"listen: 0.0.0.0:1",
		"serve:",
		"  listen: 127.0.0.1:9000",
		"  cors-origins:",
		"    - http://localhost:3000",
		"    - http://127.0.0.1:3000",
	}, "\n"), "serve")

	assert.Equal(t, "127.0.0.1:9000", cli.Serve.Listen)
	assert.Equal(t, []string{"http://localhost:3000", "http://127.0.0.1:3000"}, cli.Serve.CORSOrigins)
}

func TestYAML_FlagsOverrideFile(t *testing.T) {
	cli, _ := parse(t, "server: https://from-file.example.com\n",
		"--server", "https://from-flag.example.com", "whoami")

	assert.Equal(t, "https://from-flag.example.com", cli.Server)
}

func TestYAML_EmptyFileKeepsDefaults(t *testing.T) {
	cli, _ := parse(t, "", "serve")

	assert.Equal(t, "http://localhost:5000", cli.Server)
	assert.Equal(t, "127.0.0.1:8420", cli.Serve.Listen)
}

func TestYAML_Invalid(t *testing.T) {
	_, err := YAML(strings.NewReader("server: [unterminated"))
	require.Error(t, err)
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "3", stringify(3))
	assert.Equal(t, "true", stringify(true))
	assert.Equal(t, "a,b", stringify([]any{"a", "b"}))
	assert.Equal(t, "", stringify(nil))
}
