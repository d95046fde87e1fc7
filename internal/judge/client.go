package judge

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const statusAccepted = 3

// languageIDs maps the language names questions allow to Judge0 language ids.
var languageIDs = map[string]int{
	"python":     71,
	"cpp":        54,
	"java":       62,
	"javascript": 63,
	"c":          50,
	"go":         60,
	"ruby":       72,
}

// LanguageID resolves a question language name to its Judge0 id.
func LanguageID(language string) (int, bool) {
	id, ok := languageIDs[strings.ToLower(strings.TrimSpace(language))]
	return id, ok
}

// ClientConfig holds the upstream connection settings.
type ClientConfig struct {
	BaseURL      string
	APIKey       string
	APIKeyHeader string
	APIHost      string // RapidAPI host header, empty for self-hosted instances
	Timeout      time.Duration
}

// Client talks to a Judge0 instance. Submissions run synchronously
// (wait=true) with base64-encoded payloads so arbitrary bytes survive the
// wire.
type Client struct {
	http   *resty.Client
	logger *slog.Logger
}

func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(2).
		SetRetryWaitTime(100 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		SetHeader("Content-Type", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})

	if cfg.APIKey != "" {
		header := cfg.APIKeyHeader
		if header == "" {
			header = "X-Auth-Token"
		}
		httpClient.SetHeader(header, cfg.APIKey)
	}
	if cfg.APIHost != "" {
		httpClient.SetHeader("X-RapidAPI-Host", cfg.APIHost)
	}

	return &Client{
		http:   httpClient,
		logger: logger,
	}
}

// Submission is one program execution request.
type Submission struct {
	SourceCode     string
	LanguageID     int
	Stdin          string
	ExpectedOutput string  // empty when the caller checks output itself
	CPUTimeLimit   float64 // Seconds, zero for the Judge0 default
	MemoryLimitKB  int     // zero for the Judge0 default
}

// Status is the Judge0 verdict for one execution.
type Status struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

// Result is one decoded execution outcome.
type Result struct {
	Token         string
	Status        Status
	Stdout        string
	Stderr        string
	CompileOutput string
	Time          float64 // Seconds
	Memory        int     // KB
}

// Passed reports whether the judge accepted the execution. Deployments vary
// in status ids, so the description prefix counts too.
func (r *Result) Passed() bool {
	if r.Status.ID == statusAccepted {
		return true
	}
	return strings.HasPrefix(strings.ToLower(r.Status.Description), "accepted")
}

type submissionRequest struct {
	SourceCode     string  `json:"source_code"`
	LanguageID     int     `json:"language_id"`
	Stdin          string  `json:"stdin,omitempty"`
	ExpectedOutput string  `json:"expected_output,omitempty"`
	CPUTimeLimit   float64 `json:"cpu_time_limit,omitempty"`
	MemoryLimit    int     `json:"memory_limit,omitempty"`
}

type submissionResponse struct {
	Token         string  `json:"token"`
	Status        Status  `json:"status"`
	Stdout        string  `json:"stdout"`
	Stderr        string  `json:"stderr"`
	CompileOutput string  `json:"compile_output"`
	Time          *string `json:"time"` // Judge0 serializes seconds as a string
	Memory        *int    `json:"memory"`
}

// Execute runs one submission synchronously and decodes the outcome.
func (c *Client) Execute(ctx context.Context, sub Submission) (*Result, error) {
	req := submissionRequest{
		SourceCode:   base64.StdEncoding.EncodeToString([]byte(sub.SourceCode)),
		LanguageID:   sub.LanguageID,
		CPUTimeLimit: sub.CPUTimeLimit,
		MemoryLimit:  sub.MemoryLimitKB,
	}
	if sub.Stdin != "" {
		req.Stdin = base64.StdEncoding.EncodeToString([]byte(sub.Stdin))
	}
	if sub.ExpectedOutput != "" {
		req.ExpectedOutput = base64.StdEncoding.EncodeToString([]byte(sub.ExpectedOutput))
	}

	var resp submissionResponse
	httpResp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"base64_encoded": "true",
			"wait":           "true",
		}).
		SetBody(req).
		SetResult(&resp).
		Post("/submissions")
	if err != nil {
		return nil, fmt.Errorf("judge request failed: %w", err)
	}
	if httpResp.IsError() {
		return nil, fmt.Errorf("judge returned status %d: %s", httpResp.StatusCode(), httpResp.String())
	}

	result := &Result{
		Token:         resp.Token,
		Status:        resp.Status,
		Stdout:        decodeBase64(resp.Stdout),
		Stderr:        decodeBase64(resp.Stderr),
		CompileOutput: decodeBase64(resp.CompileOutput),
	}
	if resp.Time != nil {
		if seconds, err := strconv.ParseFloat(*resp.Time, 64); err == nil {
			result.Time = seconds
		}
	}
	if resp.Memory != nil {
		result.Memory = *resp.Memory
	}

	c.logger.Debug("Judge execution finished",
		"token", result.Token,
		"status_id", result.Status.ID,
		"status", result.Status.Description)

	return result, nil
}

// decodeBase64 tolerates plain-text fields: some deployments skip encoding
// error output even with base64_encoded=true.
func decodeBase64(encoded string) string {
	if encoded == "" {
		return ""
	}

	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' {
			return -1
		}
		return r
	}, encoded)

	decoded, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return encoded
	}
	return string(decoded)
}
