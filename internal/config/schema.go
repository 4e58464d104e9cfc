package config

// Config holds papertrail configuration.
// Stored at: {home}/config.yaml
type Config struct {
	API        APICfg        `mapstructure:"api" yaml:"api"`
	LLM        LLMCfg        `mapstructure:"llm" yaml:"llm"`
	Reconcile  ReconcileCfg  `mapstructure:"reconcile" yaml:"reconcile"`
	Candidates CandidatesCfg `mapstructure:"candidates" yaml:"candidates"`
	Export     ExportCfg     `mapstructure:"export" yaml:"export"`
}

// APICfg configures access to the document service REST API.
type APICfg struct {
	BaseURL        string `mapstructure:"base_url" yaml:"base_url"`
	Token          string `mapstructure:"token" yaml:"token"` // supports ${ENV_VAR} syntax
	TokenFile      string `mapstructure:"token_file" yaml:"token_file"`
	PageSize       int    `mapstructure:"page_size" yaml:"page_size"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

// LLMCfg configures the external OpenAI-compatible OCR provider.
type LLMCfg struct {
	BaseURL        string `mapstructure:"base_url" yaml:"base_url"`
	APIKey         string `mapstructure:"api_key" yaml:"api_key"` // supports ${ENV_VAR} syntax
	KeyFile        string `mapstructure:"key_file" yaml:"key_file"`
	Model          string `mapstructure:"model" yaml:"model"`
	Mode           string `mapstructure:"mode" yaml:"mode"` // "responses" or "chat_completions"
	Prompt         string `mapstructure:"prompt" yaml:"prompt"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	RetryAttempts  int    `mapstructure:"retry_attempts" yaml:"retry_attempts"`
	UpdateService  bool   `mapstructure:"update_service" yaml:"update_service"`
}

// ReconcileCfg tunes the reprocess reconciliation engine's polling loops.
type ReconcileCfg struct {
	TaskPollIntervalSeconds int `mapstructure:"task_poll_interval_seconds" yaml:"task_poll_interval_seconds"`
	DiffPollIntervalSeconds int `mapstructure:"diff_poll_interval_seconds" yaml:"diff_poll_interval_seconds"`
	DiffMaxWaitSeconds      int `mapstructure:"diff_max_wait_seconds" yaml:"diff_max_wait_seconds"`
}

// CandidatesCfg tunes candidate selection defaults.
type CandidatesCfg struct {
	BatchSize            int `mapstructure:"batch_size" yaml:"batch_size"`
	ExcludeRecentDays    int `mapstructure:"exclude_recent_days" yaml:"exclude_recent_days"`
	ProspectiveThreshold int `mapstructure:"prospective_threshold" yaml:"prospective_threshold"`
}

// ExportCfg configures retrieval export output.
type ExportCfg struct {
	Root   string `mapstructure:"root" yaml:"root"`
	Format string `mapstructure:"format" yaml:"format"` // "both", "json_only", "md_only"
}

// LLM API modes.
const (
	LLMModeResponses = "responses"
	LLMModeChat      = "chat_completions"
)

// DefaultLLMPrompt is the extraction prompt used when none is configured.
const DefaultLLMPrompt = "Extract all text from this PDF with high fidelity. " +
	"Return plain markdown optimized for RAG chunking with headings where meaningful."

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		API: APICfg{
			BaseURL:        "http://127.0.0.1:8000",
			Token:          "${PAPERTRAIL_API_TOKEN}",
			PageSize:       200,
			TimeoutSeconds: 30,
		},
		LLM: LLMCfg{
			BaseURL:        "https://api.openai.com",
			APIKey:         "${OPENAI_API_KEY}",
			Model:          "gpt-4.1-mini",
			Mode:           LLMModeResponses,
			Prompt:         DefaultLLMPrompt,
			TimeoutSeconds: 180,
			RetryAttempts:  2,
		},
		Reconcile: ReconcileCfg{
			TaskPollIntervalSeconds: 2,
			DiffPollIntervalSeconds: 5,
			DiffMaxWaitSeconds:      600,
		},
		Candidates: CandidatesCfg{
			BatchSize:            50,
			ExcludeRecentDays:    14,
			ProspectiveThreshold: 120,
		},
		Export: ExportCfg{
			Format: "both",
		},
	}
}
