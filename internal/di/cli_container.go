package di

import (
	"context"
	"flag"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-triage/internal/adapters/intake"
	"github.com/mikey/llm-mail-triage/internal/config"
	"github.com/mikey/llm-mail-triage/internal/factory"
	"github.com/mikey/llm-mail-triage/internal/logging"
	"github.com/mikey/llm-mail-triage/internal/trust"
)

// CLIFlags contains all command line flags for the CLI application.
type CLIFlags struct {
	// Classifier flags
	Mode     string
	ForceLLM bool

	// LLM provider flags
	Provider    string
	MaxBodySize int

	// Ollama flags
	OllamaBaseURL string
	OllamaModel   string

	// Bedrock flags
	BedrockRegion  string
	BedrockModelID string

	// Gemini flags
	GeminiAPIKey string
	GeminiModel  string

	// OpenAI flags
	OpenAIAPIKey string
	OpenAIModel  string

	// Stats flags
	StatsType  string
	SQLitePath string

	// Feedback flags
	FeedbackAction string
	FeedbackFolder string
	EmailID        string
	SenderEmail    string
	AccountID      string

	// Input flags
	InputFile  string
	Verbose    bool
	ConfigFile string
}

// ParseFlags parses command line flags and returns a CLIFlags struct.
func ParseFlags() *CLIFlags {
	flags := &CLIFlags{}

	flag.StringVar(&flags.Mode, "mode", "unified", "Classifier mode (unified, ensemble)")
	flag.BoolVar(&flags.ForceLLM, "force-llm", false, "Always run the LLM layer")

	flag.StringVar(&flags.Provider, "provider", "ollama", "LLM provider (ollama, openai, bedrock, gemini)")
	flag.IntVar(&flags.MaxBodySize, "max-body-size", 4096, "Maximum email body size to send to the LLM")

	flag.StringVar(&flags.OllamaBaseURL, "ollama-url", "http://localhost:11434", "Base URL of the ollama instance")
	flag.StringVar(&flags.OllamaModel, "ollama-model", "llama3", "Ollama model name")

	flag.StringVar(&flags.BedrockRegion, "bedrock-region", "us-east-1", "AWS region for Bedrock")
	flag.StringVar(&flags.BedrockModelID, "bedrock-model", "anthropic.claude-3-haiku-20240307-v1:0", "Bedrock model ID")

	flag.StringVar(&flags.GeminiAPIKey, "gemini-api-key", "", "API key for Google Gemini")
	flag.StringVar(&flags.GeminiModel, "gemini-model", "gemini-1.5-flash", "Gemini model name")

	flag.StringVar(&flags.OpenAIAPIKey, "openai-api-key", "", "API key for OpenAI")
	flag.StringVar(&flags.OpenAIModel, "openai-model", "gpt-4o-mini", "OpenAI model name")

	flag.StringVar(&flags.StatsType, "stats", "memory", "Statistics store (memory, sqlite, mysql)")
	flag.StringVar(&flags.SQLitePath, "sqlite-path", "mail-triage.db", "SQLite database path")

	flag.StringVar(&flags.FeedbackAction, "feedback", "", "Record a feedback action instead of classifying (replied, archived, deleted, starred, moved_folder, marked_important, marked_spam)")
	flag.StringVar(&flags.FeedbackFolder, "folder", "", "Target folder for the moved_folder feedback action")
	flag.StringVar(&flags.EmailID, "email-id", "", "Email ID for feedback actions")
	flag.StringVar(&flags.SenderEmail, "sender", "", "Sender address for feedback actions")
	flag.StringVar(&flags.AccountID, "account", "default", "Account ID")

	flag.StringVar(&flags.InputFile, "file", "", "Input email file (use stdin if not specified)")
	flag.BoolVar(&flags.Verbose, "verbose", false, "Enable verbose output")
	flag.StringVar(&flags.ConfigFile, "config", "", "Path to config file (overrides command line flags)")

	flag.Parse()
	return flags
}

// BuildCLIContainer wires the dependency graph for the CLI application.
func BuildCLIContainer(flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		level := "warn"
		if flags.Verbose {
			level = "debug"
		}
		return logging.InitConsoleLogger(level)
	}); err != nil {
		return nil, err
	}

	if err := container.Provide(func(flags *CLIFlags) (*config.Config, error) {
		if flags.ConfigFile != "" {
			return config.LoadConfig(flags.ConfigFile)
		}
		return configFromFlags(flags)
	}); err != nil {
		return nil, err
	}

	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) (*factory.Pipeline, error) {
		return factory.NewPipeline(context.Background(), cfg, logger)
	}); err != nil {
		return nil, err
	}

	if err := container.Provide(factory.NewTrustChecker); err != nil {
		return nil, err
	}

	if err := container.Provide(func(flags *CLIFlags, p *factory.Pipeline, trusted *trust.Checker, logger *zap.Logger) *intake.CLIIntake {
		return intake.NewCLIIntake(p.Triager, trusted, flags.AccountID, flags.Verbose, logger)
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// configFromFlags builds a configuration from command line flags on top of
// the defaults.
func configFromFlags(flags *CLIFlags) (*config.Config, error) {
	cfg, err := config.LoadConfig("")
	if err != nil {
		return nil, err
	}

	cfg.Classifier.Mode = flags.Mode
	cfg.Classifier.ForceLLM = flags.ForceLLM
	cfg.LLM.Provider = flags.Provider
	cfg.LLM.MaxBodySize = flags.MaxBodySize
	cfg.Ollama.BaseURL = flags.OllamaBaseURL
	cfg.Ollama.Model = flags.OllamaModel
	cfg.Bedrock.Region = flags.BedrockRegion
	cfg.Bedrock.ModelID = flags.BedrockModelID
	cfg.Gemini.APIKey = flags.GeminiAPIKey
	cfg.Gemini.Model = flags.GeminiModel
	cfg.OpenAI.APIKey = flags.OpenAIAPIKey
	cfg.OpenAI.Model = flags.OpenAIModel
	cfg.Stats.Type = flags.StatsType
	cfg.Stats.SQLitePath = flags.SQLitePath
	cfg.Server.DefaultAccountID = flags.AccountID

	return cfg, nil
}
