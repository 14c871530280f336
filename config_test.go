package tasker

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/tasker/policy"
)

func TestConfig_Validate(t *testing.T) {
	testCases := []struct {
		name      string
		mutate    func(c *Config)
		expectErr string
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "unknown backend", mutate: func(c *Config) { c.Storage.Backend = "redis" }, expectErr: "storage.backend"},
		{name: "missing url", mutate: func(c *Config) { c.Storage.URL = "" }, expectErr: "storage.url"},
		{name: "memory without url", mutate: func(c *Config) { c.Storage.Backend = BackendMemory; c.Storage.URL = "" }},
		{name: "no workers", mutate: func(c *Config) { c.Processor.WorkerCount = 0 }, expectErr: "processor.workers"},
		{name: "no namespaces", mutate: func(c *Config) { c.Namespaces = nil }, expectErr: "at least one namespace"},
		{name: "duplicate namespace", mutate: func(c *Config) { c.Namespaces[1].Prefix = "tasks" }, expectErr: "duplicate namespace"},
		{name: "reserved namespace", mutate: func(c *Config) { c.Namespaces[1].Prefix = "health" }, expectErr: "reserved"},
		{
			name: "pipeline without command",
			mutate: func(c *Config) {
				c.Pipelines = []*PipelineConfig{{Kind: "train"}}
			},
			expectErr: "kind and command are required",
		},
		{
			name: "pipeline in unknown namespace",
			mutate: func(c *Config) {
				c.Pipelines = []*PipelineConfig{{Kind: "train", Command: "echo", Namespace: "nope"}}
			},
			expectErr: "unknown namespace",
		},
		{
			name:      "invalid policy",
			mutate:    func(c *Config) { c.Policy = &policy.Config{Mode: "maybe"} },
			expectErr: "mode",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.expectErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.expectErr)
		})
	}
}

func TestConfig_Init(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Namespaces = append(cfg.Namespaces, &NamespaceConfig{Prefix: "/builds/"})
	cfg.Pipelines = []*PipelineConfig{{Kind: "train", Command: "echo"}, {Kind: "lint", Command: "echo", Namespace: "builds"}}
	cfg.Init()
	assert.Equal(t, "builds", cfg.Namespaces[2].Prefix)
	assert.Equal(t, "build", cfg.Namespaces[2].Noun)
	assert.Equal(t, DefaultPipelineNamespace, cfg.Pipelines[0].Namespace)
	assert.Equal(t, "builds", cfg.Pipelines[1].Namespace)

	cfg = &Config{Namespaces: []*NamespaceConfig{{Prefix: "work"}}, Pipelines: []*PipelineConfig{{Kind: "x"}}}
	cfg.Init()
	assert.Equal(t, "work", cfg.Pipelines[0].Namespace)
}

func TestLoadConfig(t *testing.T) {
	ctx := context.Background()
	fs := afs.New()
	t.Setenv("TASKER_ADDR", "0.0.0.0:9000")
	testCases := []struct {
		name      string
		URL       string
		content   string
		expectErr bool
		check     func(t *testing.T, c *Config)
	}{
		{
			name: "yaml",
			URL:  "mem://localhost/config/tasker.yaml",
			content: `storage:
  backend: sqlite
  url: /tmp/tasker
server:
  addr: ${env.TASKER_ADDR}
pipelines:
  - kind: train
    command: python train.py --epochs ${epochs}
    timeoutMs: 60000
`,
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, BackendSQLite, c.Storage.Backend)
				assert.True(t, c.Storage.Reconcile)
				assert.Equal(t, "0.0.0.0:9000", c.Server.Addr)
				assert.Equal(t, 200*time.Millisecond, c.Server.StreamInterval())
				require.Len(t, c.Pipelines, 1)
				assert.Equal(t, "jobs", c.Pipelines[0].Namespace)
				assert.Equal(t, 60000, c.Pipelines[0].TimeoutMs)
			},
		},
		{
			name: "toml",
			URL:  "mem://localhost/config/tasker.toml",
			content: `[processor]
workers = 4

[policy]
mode = "auto"
block = ["rm*"]
`,
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, 4, c.Processor.WorkerCount)
				require.NotNil(t, c.Policy)
				assert.Equal(t, []string{"rm*"}, c.Policy.BlockList)
			},
		},
		{
			name:      "invalid",
			URL:       "mem://localhost/config/bad.json",
			content:   `{"processor":{"workers":-1}}`,
			expectErr: true,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.NoError(t, fs.Upload(ctx, tc.URL, file.DefaultFileOsMode, strings.NewReader(tc.content)))
			cfg, err := LoadConfig(ctx, tc.URL)
			if tc.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tc.check(t, cfg)
		})
	}
}
