package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Laellekoenig/tables/internal/logger"
	"github.com/go-resty/resty/v2"
)

// Fixed file names of the sandbox execution contract. The generated script
// reads inputFileName and writes outputFileName; see prompts.
const (
	inputFileName  = "data.csv"
	scriptFileName = "script.py"
	outputFileName = "transformed.csv"
)

// SandboxExecutor runs untrusted generated scripts against an input CSV in
// an isolated environment and returns the output CSV.
type SandboxExecutor interface {
	Execute(ctx context.Context, inputCsv, script string) (string, error)
}

// SandboxService executes scripts through an ephemeral-sandbox HTTP API.
// Each invocation creates a fresh sandbox, uploads the input CSV and the
// script under fixed file names, runs the script with a hard wall-clock
// timeout, downloads the output file, and tears the sandbox down.
type SandboxService struct {
	client      *resty.Client
	baseURL     string
	snapshot    string
	execTimeout time.Duration
}

// SandboxServiceConfig holds configuration for the sandbox executor client.
type SandboxServiceConfig struct {
	BaseURL        string
	APIKey         string
	Snapshot       string
	ExecTimeout    time.Duration
	RequestTimeout time.Duration
}

// NewSandboxService creates a new sandbox executor client.
// Parameters:
//   - cfg: sandbox configuration including endpoint and timeouts.
// Returns:
//   - *SandboxService: initialized client.
func NewSandboxService(cfg *SandboxServiceConfig) *SandboxService {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 60 * time.Second
	}
	client.SetTimeout(requestTimeout)

	execTimeout := cfg.ExecTimeout
	if execTimeout <= 0 {
		execTimeout = 30 * time.Second
	}

	return &SandboxService{
		client:      client,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		snapshot:    cfg.Snapshot,
		execTimeout: execTimeout,
	}
}

type createSandboxRequest struct {
	Snapshot    string `json:"snapshot"`
	Language    string `json:"language"`
	Ephemeral   bool   `json:"ephemeral"`
	NetworkOff  bool   `json:"network_block_all"`
	AutoExpireS int    `json:"auto_expire_seconds"`
}

type createSandboxResponse struct {
	ID string `json:"id"`
}

type execCommandRequest struct {
	Command        string `json:"command"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type execCommandResponse struct {
	ExitCode int    `json:"exit_code"`
	Result   string `json:"result"`
}

// Execute runs a generated script against an input CSV.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - inputCsv: dataset the script reads as "data.csv".
//   - script: Python script uploaded as "script.py".
// Returns:
//   - string: contents of "transformed.csv" written by the script.
//   - error: non-nil on sandbox failure, non-zero exit, timeout, or empty output.
func (s *SandboxService) Execute(ctx context.Context, inputCsv, script string) (string, error) {
	sandboxID, err := s.createSandbox(ctx)
	if err != nil {
		return "", err
	}
	// The sandbox is ephemeral and self-expires; teardown failures are
	// swallowed on every path.
	defer s.deleteSandbox(sandboxID)

	if err := s.uploadFile(ctx, sandboxID, inputFileName, inputCsv); err != nil {
		return "", err
	}
	if err := s.uploadFile(ctx, sandboxID, scriptFileName, script); err != nil {
		return "", err
	}

	var execResp execCommandResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(execCommandRequest{
			Command:        fmt.Sprintf("python3 %s 2>&1", scriptFileName),
			TimeoutSeconds: int(s.execTimeout.Seconds()),
		}).
		SetResult(&execResp).
		Post(fmt.Sprintf("%s/sandboxes/%s/exec", s.baseURL, sandboxID))
	if err != nil {
		return "", fmt.Errorf("failed to execute Python script: %w", err)
	}
	if httpResp.IsError() {
		return "", fmt.Errorf("failed to execute Python script: HTTP %d", httpResp.StatusCode())
	}
	if execResp.ExitCode != 0 {
		return "", fmt.Errorf("Python script failed:\n%s", execResp.Result)
	}

	output, err := s.downloadFile(ctx, sandboxID, outputFileName)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(output) == "" {
		return "", fmt.Errorf("Python script produced an empty output file.")
	}

	return output, nil
}

func (s *SandboxService) createSandbox(ctx context.Context) (string, error) {
	var resp createSandboxResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(createSandboxRequest{
			Snapshot:    s.snapshot,
			Language:    "python",
			Ephemeral:   true,
			NetworkOff:  true,
			AutoExpireS: 60,
		}).
		SetResult(&resp).
		Post(s.baseURL + "/sandboxes")
	if err != nil {
		return "", fmt.Errorf("failed to create sandbox: %w", err)
	}
	if httpResp.IsError() || resp.ID == "" {
		return "", fmt.Errorf("failed to create sandbox: HTTP %d", httpResp.StatusCode())
	}
	return resp.ID, nil
}

func (s *SandboxService) uploadFile(ctx context.Context, sandboxID, path, content string) error {
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/octet-stream").
		SetQueryParam("path", path).
		SetBody([]byte(content)).
		Post(fmt.Sprintf("%s/sandboxes/%s/files", s.baseURL, sandboxID))
	if err != nil || httpResp.IsError() {
		return fmt.Errorf("failed to upload files to sandbox")
	}
	return nil
}

func (s *SandboxService) downloadFile(ctx context.Context, sandboxID, path string) (string, error) {
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("path", path).
		Get(fmt.Sprintf("%s/sandboxes/%s/files", s.baseURL, sandboxID))
	if err != nil || httpResp.IsError() {
		return "", fmt.Errorf("failed to download transformed CSV")
	}
	return string(httpResp.Body()), nil
}

func (s *SandboxService) deleteSandbox(sandboxID string) {
	// Best-effort; runs detached from the request context so teardown still
	// happens after a caller-side cancellation.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := s.client.R().
		SetContext(ctx).
		Delete(fmt.Sprintf("%s/sandboxes/%s", s.baseURL, sandboxID)); err != nil {
		logger.Warn("Failed to delete sandbox %s: %v", sandboxID, err)
	}
}
