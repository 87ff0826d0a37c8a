package decompose

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	// DefaultTimeout bounds a single decomposition request.
	DefaultTimeout = 10 * time.Second
	// DefaultMaxSteps caps the number of steps kept from a reply.
	DefaultMaxSteps = 10

	maxResponseBytes int64 = 1 << 20
	stepsSchemaURL         = "steps.schema.json"
)

//go:embed steps.schema.json
var stepsSchema string

// HTTPOptions configures an HTTP decomposer.
type HTTPOptions struct {
	Endpoint string
	Timeout  time.Duration
	MaxSteps int
	// Client performs the requests. Use AuthClient to attach credentials.
	Client *http.Client
}

// HTTP asks a remote service to decompose tasks. The service receives
// {"task": "...", "max_steps": N} and answers {"steps": ["...", ...]}.
type HTTP struct {
	endpoint string
	timeout  time.Duration
	maxSteps int
	client   *http.Client
	schema   *jsonschema.Schema
}

type stepsRequest struct {
	Task     string `json:"task"`
	MaxSteps int    `json:"max_steps"`
}

type stepsResponse struct {
	Steps []string `json:"steps"`
}

// NewHTTP validates the options and compiles the reply schema.
func NewHTTP(opts HTTPOptions) (*HTTP, error) {
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("decompose: endpoint is required")
	}
	parsed, err := url.Parse(endpoint)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("decompose: endpoint %q must be an http(s) URL", endpoint)
	}
	schema, err := compileStepsSchema()
	if err != nil {
		return nil, err
	}
	h := &HTTP{
		endpoint: endpoint,
		timeout:  opts.Timeout,
		maxSteps: opts.MaxSteps,
		client:   opts.Client,
		schema:   schema,
	}
	if h.timeout <= 0 {
		h.timeout = DefaultTimeout
	}
	if h.maxSteps <= 0 {
		h.maxSteps = DefaultMaxSteps
	}
	if h.client == nil {
		h.client = http.DefaultClient
	}
	return h, nil
}

func compileStepsSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(stepsSchemaURL, strings.NewReader(stepsSchema)); err != nil {
		return nil, fmt.Errorf("decompose: load schema: %w", err)
	}
	schema, err := compiler.Compile(stepsSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("decompose: compile schema: %w", err)
	}
	return schema, nil
}

// Decompose implements Decomposer.
func (h *HTTP) Decompose(ctx context.Context, text string) ([]string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	body, err := json.Marshal(stepsRequest{Task: text, MaxSteps: h.maxSteps})
	if err != nil {
		return nil, fmt.Errorf("decompose: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("decompose: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("decompose: request %s: %w", h.endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("decompose: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("decompose: service returned %s", resp.Status)
	}
	return h.parse(data)
}

func (h *HTTP) parse(data []byte) ([]string, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if err := h.schema.Validate(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	var reply stepsResponse
	if err := json.Unmarshal(data, &reply); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	steps := make([]string, 0, len(reply.Steps))
	for _, step := range reply.Steps {
		step = strings.TrimSpace(step)
		if step == "" {
			continue
		}
		steps = append(steps, step)
		if len(steps) == h.maxSteps {
			break
		}
	}
	return steps, nil
}
