package provider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlenz-dev/aibroker/internal/config"
)

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{
			name: "valid single message",
			req: Request{
				Messages: []Message{{Role: RoleUser, Content: "hi"}},
			},
		},
		{
			name:    "no messages",
			req:     Request{},
			wantErr: true,
		},
		{
			name: "invalid role",
			req: Request{
				Messages: []Message{{Role: "function", Content: "x"}},
			},
			wantErr: true,
		},
		{
			name: "all roles accepted",
			req: Request{
				Messages: []Message{
					{Role: RoleSystem, Content: "s"},
					{Role: RoleUser, Content: "u"},
					{Role: RoleAssistant, Content: "a"},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRequestTimeout(t *testing.T) {
	def := 120 * time.Second

	assert.Equal(t, def, Request{}.Timeout(def))
	assert.Equal(t, 30*time.Second, Request{TimeoutSeconds: 30}.Timeout(def))
	assert.Equal(t, def, Request{TimeoutSeconds: -1}.Timeout(def))
}

func TestRequestWantsJSONObject(t *testing.T) {
	assert.False(t, Request{}.WantsJSONObject())
	assert.False(t, Request{ResponseFormat: &ResponseFormat{Type: "text"}}.WantsJSONObject())
	assert.True(t, Request{ResponseFormat: &ResponseFormat{Type: "json_object"}}.WantsJSONObject())
}

func TestResultOK(t *testing.T) {
	assert.True(t, Result{Content: "x"}.OK())
	assert.False(t, Result{}.OK())
	assert.False(t, Result{Err: "boom"}.OK())
	assert.False(t, Result{Content: "x", Err: "boom"}.OK())
}

func TestNewAdapter(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.ProviderConfig
		wantErr string
	}{
		{
			name: "openai with key",
			cfg: config.ProviderConfig{
				Name: "Test", Kind: "openai", APIKey: "sk-test",
				BaseURL: "https://api.example.com", DefaultModel: "m",
			},
		},
		{
			name: "openai without key",
			cfg: config.ProviderConfig{
				Name: "Test", Kind: "openai",
				BaseURL: "https://api.example.com", DefaultModel: "m",
			},
			wantErr: "API key required",
		},
		{
			name: "ollama needs no key",
			cfg: config.ProviderConfig{
				Name: "Local", Kind: "ollama",
				BaseURL: "http://localhost:11434", DefaultModel: "llama3",
			},
		},
		{
			name: "unknown kind",
			cfg: config.ProviderConfig{
				Name: "Odd", Kind: "grpc", APIKey: "k",
			},
			wantErr: "unsupported kind",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter, err := NewAdapter(tt.cfg, time.Minute)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.cfg.Name, adapter.Name())
		})
	}
}

func TestResolveModel(t *testing.T) {
	adapter, err := NewAdapter(config.ProviderConfig{
		Name: "Test", Kind: "openai", APIKey: "sk-test",
		BaseURL:        "https://api.example.com",
		DefaultModel:   "chat-v1",
		ReasoningModel: "reasoner-v1",
	}, time.Minute)
	require.NoError(t, err)

	assert.Equal(t, "chat-v1", adapter.ResolveModel(Request{}))
	assert.Equal(t, "reasoner-v1", adapter.ResolveModel(Request{UseReasoningModel: true}))
	assert.Equal(t, "override", adapter.ResolveModel(Request{Model: "override", UseReasoningModel: true}))
}

func TestBuildRegistry_SkipsUnusableProviders(t *testing.T) {
	cfgs := []config.ProviderConfig{
		{Name: "Good", Kind: "openai", APIKey: "sk-1", BaseURL: "https://a", DefaultModel: "m"},
		{Name: "NoKey", Kind: "openai", BaseURL: "https://b", DefaultModel: "m"},
		{Name: "AlsoGood", Kind: "ollama", BaseURL: "http://localhost:11434", DefaultModel: "m"},
	}

	registry := BuildRegistry(cfgs, time.Minute)
	assert.Equal(t, 2, registry.Len())
	assert.NotNil(t, registry.Find("Good"))
	assert.Nil(t, registry.Find("NoKey"))
	assert.NotNil(t, registry.Find("alsogood"), "lookup is case-insensitive")
	assert.Equal(t, []string{"Good", "AlsoGood"}, registry.Names())
}

func TestStripMarkup(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain text untouched",
			in:   "grade this submission",
			want: "grade this submission",
		},
		{
			name: "headings removed",
			in:   "# Title\nbody",
			want: "Title\nbody",
		},
		{
			name: "emphasis unwrapped",
			in:   "this is **important** and *subtle*",
			want: "this is important and subtle",
		},
		{
			name: "inline code unwrapped",
			in:   "call `foo()` now",
			want: "call foo() now",
		},
		{
			name: "fence lines removed, content kept",
			in:   "```python\nprint(1)\n```",
			want: "\nprint(1)\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripMarkup(tt.in))
		})
	}
}
