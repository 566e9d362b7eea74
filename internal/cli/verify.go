package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/sourcecheck/internal/config"
	"github.com/ppiankov/sourcecheck/internal/model"
	"github.com/ppiankov/sourcecheck/internal/pipeline"
)

var (
	sourcePath  string
	sourceURL   string
	claimsPath  string
	schemaPath  string
	policyPath  string
	outJSON     string
	outMD       string
	timeout     time.Duration
	userAgent   string
	maxBytes    int64
	noCache     bool
	noFooter    bool
	insecureTLS bool
	provider    string
	modelName   string
)

// verifyCmd represents the verify command
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify claims against a source text",
	Long: `Verify checks every claim the schema declares against the source text:
- Extract claims from the claims file using the schema
- Retrieve the source spans most relevant to each claim
- Run the semantic, entailment and rule validators
- Combine their votes into a verdict and analyse claim quality
- Write a JSON and optional Markdown report

The claims file may be JSON or plain text. Plain text is verified as the
"body" field.

Example:
  sourcecheck verify --source note.txt --claims summary.json --schema schema.yaml
  sourcecheck verify --source-url https://example.com/article --claims claims.json --schema schema.toml --policy policy.yaml
  sourcecheck verify --source note.txt --claims summary.txt --schema schema.json --md report.md`,
	Args: cobra.NoArgs,
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	// Input flags
	verifyCmd.Flags().StringVar(&sourcePath, "source", "", "source text file")
	verifyCmd.Flags().StringVar(&sourceURL, "source-url", "", "fetch the source text from a URL")
	verifyCmd.Flags().StringVar(&claimsPath, "claims", "", "claims file (JSON, or plain text verified as the body field)")
	verifyCmd.Flags().StringVar(&schemaPath, "schema", "", "schema file (JSON, YAML or TOML)")
	verifyCmd.Flags().StringVar(&policyPath, "policy", "", "policy file (JSON, YAML or TOML); built-in defaults when omitted")
	verifyCmd.MarkFlagsMutuallyExclusive("source", "source-url")
	verifyCmd.MarkFlagsOneRequired("source", "source-url")
	_ = verifyCmd.MarkFlagRequired("claims")
	_ = verifyCmd.MarkFlagRequired("schema")

	// Output flags
	verifyCmd.Flags().StringVar(&outJSON, "json", "report.json", "output JSON path")
	verifyCmd.Flags().StringVar(&outMD, "md", "", "output Markdown path (optional)")
	verifyCmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")

	// Runtime flags
	verifyCmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "overall timeout including source fetch; the policy's run.timeout still applies")
	verifyCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the backend result cache")
	verifyCmd.Flags().StringVar(&provider, "backend", "", "verification backend (lexical, openai, anthropic, ollama)")
	verifyCmd.Flags().StringVar(&modelName, "model", "", "backend model for entailment classification")

	// HTTP flags
	verifyCmd.Flags().StringVar(&userAgent, "ua", "", "HTTP User-Agent for --source-url")
	verifyCmd.Flags().Int64Var(&maxBytes, "max-bytes", 0, "max response bytes to read for --source-url")
	verifyCmd.Flags().BoolVar(&insecureTLS, "insecure", false, "skip TLS certificate verification (use for self-signed certs)")
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg)

	if verbose {
		fmt.Fprintf(os.Stderr, "Backend: %s\n", cfg.Backend.Provider)
		fmt.Fprintf(os.Stderr, "Timeout: %v\n", timeout)
		fmt.Fprintf(os.Stderr, "Cache: %v\n", cfg.Cache.Enabled)
		fmt.Fprintln(os.Stderr)
	}

	req, err := buildRequest(ctx, cfg)
	if err != nil {
		return err
	}

	engine, err := pipeline.NewEngineFromConfig(cfg)
	if err != nil {
		return err
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "⚙️  Verifying claims...\n")
	}

	report, err := engine.Run(ctx, req)
	if err != nil {
		return fmt.Errorf("verify failed: %w", err)
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "✓ Verified %d claims\n", report.TotalClaims)
		fmt.Fprintf(os.Stderr, "✓ Overall score: %.3f\n", report.OverallScore)
		fmt.Fprintln(os.Stderr)
	}

	renderer := pipeline.NewRenderer(cfg.Output.IncludeFooter)
	if err := renderer.RenderReport(report, outJSON, outMD, os.Stderr, verbose); err != nil {
		return fmt.Errorf("render failed: %w", err)
	}
	return nil
}

// applyRunFlags overrides config values with the flags the user set
func applyRunFlags(cmd *cobra.Command, cfg *model.Config) {
	flags := cmd.Flags()
	if flags.Changed("ua") {
		cfg.HTTP.UserAgent = userAgent
	}
	if flags.Changed("max-bytes") {
		cfg.HTTP.MaxBodyBytes = maxBytes
	}
	if flags.Changed("insecure") {
		cfg.HTTP.InsecureTLS = insecureTLS
	}
	if flags.Changed("no-cache") {
		cfg.Cache.Enabled = !noCache
	}
	if flags.Changed("no-footer") {
		cfg.Output.IncludeFooter = !noFooter
	}
	if flags.Changed("backend") {
		cfg.Backend.Provider = provider
		applyProviderEnv(&cfg.Backend)
	}
	if flags.Changed("model") {
		cfg.Backend.Model = modelName
	}
	cfg.Output.Verbose = verbose
}

// buildRequest loads the source, claims, schema and policy named by flags
func buildRequest(ctx context.Context, cfg *model.Config) (pipeline.Request, error) {
	var req pipeline.Request

	source, err := loadSource(ctx, cfg)
	if err != nil {
		return req, err
	}
	req.SourceText = source

	claims, err := os.ReadFile(claimsPath)
	if err != nil {
		return req, fmt.Errorf("read claims: %w", err)
	}
	req.Claims = claimsPayload(claimsPath, claims)

	schema, err := config.LoadSchemaFile(schemaPath)
	if err != nil {
		return req, err
	}
	req.Schema = schema

	if policyPath == "" {
		req.Policies = model.DefaultPolicy()
	} else {
		policy, err := config.LoadPolicyFile(policyPath)
		if err != nil {
			return req, err
		}
		req.Policies = policy
	}
	return req, nil
}

func loadSource(ctx context.Context, cfg *model.Config) (string, error) {
	if sourceURL == "" {
		data, err := os.ReadFile(sourcePath)
		if err != nil {
			return "", fmt.Errorf("read source: %w", err)
		}
		return string(data), nil
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "⚙️  Fetching %s...\n", sourceURL)
	}
	result, err := pipeline.NewFetcher(cfg.HTTP).FetchWithRetry(ctx, sourceURL)
	if err != nil {
		return "", fmt.Errorf("fetch source: %w", err)
	}
	if result.Truncated {
		fmt.Fprintf(os.Stderr, "Warning: source truncated at %d bytes\n", cfg.HTTP.MaxBodyBytes)
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "✓ Fetched %d bytes (%s)\n", len(result.Body), result.ContentType)
	}
	return result.Body, nil
}

// claimsPayload treats .json files as encoded payloads and anything else as
// free text
func claimsPayload(path string, data []byte) any {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return json.RawMessage(data)
	}
	return string(data)
}
