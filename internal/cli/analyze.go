package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-risk/internal/api"
	"github.com/miradorstack/mirador-risk/internal/engine"
	"github.com/miradorstack/mirador-risk/internal/models"
	"github.com/miradorstack/mirador-risk/internal/repo"
	"github.com/miradorstack/mirador-risk/internal/services"
)

// Output formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

type analyzeOptions struct {
	file         string
	url          string
	engineConfig string
	rules        string
	server       string
	explain      bool
	format       string
	timeout      time.Duration
}

// explanation is printed by analyze --explain.
type explanation struct {
	Assessment models.RiskAssessment `json:"assessment" yaml:"assessment"`
	Score      float64               `json:"score" yaml:"score"`
	Dominant   string                `json:"dominant_feature" yaml:"dominant_feature"`
	Features   map[string]float64    `json:"features" yaml:"features"`
	Clamped    []string              `json:"clamped,omitempty" yaml:"clamped,omitempty"`
}

// assessmentView renders the error flag as 0/1 in YAML like the JSON encoding does.
type assessmentView struct {
	PredictedResponseTime    float64 `yaml:"predicted_response_time"`
	PredictedErrorOccurrence int     `yaml:"predicted_error_occurrence"`
	ErrorConfidence          float64 `yaml:"error_confidence"`
	RiskLevel                string  `yaml:"risk_level"`
	TimeToImpact             string  `yaml:"time_to_impact"`
	Recommendation           string  `yaml:"recommendation"`
}

func newAnalyzeCmd(root *rootOptions) *cobra.Command {
	opts := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Assess a metrics snapshot from a file, stdin or a URL",
		Example: `  riskctl analyze -f snapshot.json
  riskctl analyze -f snapshot.yaml --explain -o yaml
  riskctl analyze --url http://localhost:8080/api/metrics/degraded
  riskctl analyze -f snapshot.json --server localhost:50051`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAnalyze(cmd, root, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "snapshot file (JSON or YAML, - for stdin)")
	cmd.Flags().StringVar(&opts.url, "url", "", "fetch the snapshot from this metrics endpoint")
	cmd.Flags().StringVar(&opts.engineConfig, "engine-config", "", "engine configuration YAML (defaults when empty)")
	cmd.Flags().StringVar(&opts.rules, "rules", "", "recommendation rule pack YAML")
	cmd.Flags().StringVar(&opts.server, "server", "", "analyze on a remote risk engine at host:port instead of locally")
	cmd.Flags().BoolVar(&opts.explain, "explain", false, "include score, dominant feature and normalized features")
	cmd.Flags().StringVarP(&opts.format, "output", "o", FormatJSON, "output format (json, yaml)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "timeout for remote calls")
	cmd.MarkFlagsMutuallyExclusive("file", "url")
	cmd.MarkFlagsMutuallyExclusive("server", "explain")
	return cmd
}

func runAnalyze(cmd *cobra.Command, root *rootOptions, opts *analyzeOptions) error {
	if err := parseFormat(opts.format); err != nil {
		return err
	}
	if opts.file == "" && opts.url == "" {
		return fmt.Errorf("one of --file or --url is required")
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	var snapshot models.MetricsSnapshot
	if opts.file != "" {
		var err error
		snapshot, err = readSnapshot(opts.file, cmd.InOrStdin())
		if err != nil {
			return err
		}
	}

	if opts.server != "" {
		conn, err := grpc.NewClient(opts.server, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return fmt.Errorf("connect to %s: %w", opts.server, err)
		}
		defer conn.Close()

		callCtx, cancel := contextWithTimeout(ctx, opts.timeout)
		defer cancel()
		client := api.NewClient(conn)
		var assessment models.RiskAssessment
		if opts.url != "" {
			assessment, err = client.AnalyzeURL(callCtx, opts.url)
		} else {
			assessment, err = client.Analyze(callCtx, snapshot)
		}
		if err != nil {
			return fmt.Errorf("remote analysis: %w", err)
		}
		return render(out, opts.format, assessment)
	}

	eng, err := engine.NewFromFiles(opts.engineConfig, opts.rules, root.log())
	if err != nil {
		return err
	}
	fetcher := repo.NewSnapshotClient(root.log(), opts.timeout, nil, 0, 0)
	svc := services.NewRiskService(root.log(), eng, fetcher)

	if opts.url != "" {
		callCtx, cancel := contextWithTimeout(ctx, opts.timeout)
		defer cancel()
		if !opts.explain {
			assessment, err := svc.AnalyzeURL(callCtx, opts.url)
			if err != nil {
				return err
			}
			return render(out, opts.format, assessment)
		}
		if snapshot, err = fetcher.FetchSnapshot(callCtx, opts.url); err != nil {
			return err
		}
	}

	if !opts.explain {
		assessment, err := svc.Analyze(ctx, snapshot)
		if err != nil {
			return err
		}
		return render(out, opts.format, assessment)
	}

	eval, clamped, err := svc.Explain(snapshot)
	if err != nil {
		return err
	}
	exp := explanation{
		Assessment: eval.Assessment,
		Score:      eval.Score,
		Dominant:   eval.Dominant.String(),
		Features:   eval.Features.Map(),
	}
	for _, f := range clamped {
		exp.Clamped = append(exp.Clamped, f.String())
	}
	return render(out, opts.format, exp)
}

// readSnapshot decodes a JSON or YAML snapshot, enforcing the same required fields as the APIs.
func readSnapshot(path string, stdin io.Reader) (models.MetricsSnapshot, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return models.MetricsSnapshot{}, fmt.Errorf("read snapshot: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return models.MetricsSnapshot{}, &models.ValidationError{Err: err}
		}
		if data, err = json.Marshal(doc); err != nil {
			return models.MetricsSnapshot{}, &models.ValidationError{Err: err}
		}
	}
	return models.DecodeSnapshot(data)
}

func parseFormat(format string) error {
	switch format {
	case FormatJSON, FormatYAML:
		return nil
	default:
		return fmt.Errorf("invalid output format %q (want json or yaml)", format)
	}
}

func render(w io.Writer, format string, v any) error {
	if format == FormatYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(yamlView(v))
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func yamlView(v any) any {
	switch t := v.(type) {
	case models.RiskAssessment:
		return toView(t)
	case explanation:
		return struct {
			Assessment assessmentView     `yaml:"assessment"`
			Score      float64            `yaml:"score"`
			Dominant   string             `yaml:"dominant_feature"`
			Features   map[string]float64 `yaml:"features"`
			Clamped    []string           `yaml:"clamped,omitempty"`
		}{toView(t.Assessment), t.Score, t.Dominant, t.Features, t.Clamped}
	default:
		return v
	}
}

func toView(a models.RiskAssessment) assessmentView {
	return assessmentView{
		PredictedResponseTime:    a.PredictedResponseTime,
		PredictedErrorOccurrence: a.PredictedErrorOccurrence.Int(),
		ErrorConfidence:          a.ErrorConfidence,
		RiskLevel:                string(a.RiskLevel),
		TimeToImpact:             string(a.TimeToImpact),
		Recommendation:           a.Recommendation,
	}
}
