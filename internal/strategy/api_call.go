package strategy

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"automation-scheduler/internal/model"
	"automation-scheduler/pkg/errors"
	"automation-scheduler/pkg/httpclient"
	"automation-scheduler/pkg/logger"
	"automation-scheduler/pkg/utils"
)

var allowedMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

type ApiCallAuth struct {
	Type       string `json:"type"`
	Token      string `json:"token"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	HeaderName string `json:"header_name"`
	APIKey     string `json:"api_key"`
}

type ApiCallConfig struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	Body    json.RawMessage   `json:"body"`
	Auth    *ApiCallAuth      `json:"auth"`
}

// BodyString returns the body as sent: a JSON string body is unquoted, any
// other JSON value is sent verbatim.
func (c ApiCallConfig) BodyString() string {
	raw := bytes.TrimSpace(c.Body)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if raw[0] == '"' && json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}

type ApiCallStrategy struct {
	log        *logger.Logger
	httpClient httpclient.HTTPClient
	maxOutput  int
}

func NewApiCallStrategy(log *logger.Logger, httpClient httpclient.HTTPClient, maxOutput int) JobExecutionStrategy {
	return &ApiCallStrategy{log: log, httpClient: httpClient, maxOutput: maxOutput}
}

func (s *ApiCallStrategy) GetType() model.JobType {
	return model.JobTypeApiCall
}

func (s *ApiCallStrategy) Validate(configuration json.RawMessage) error {
	var cfg ApiCallConfig
	if err := decodeConfig(configuration, &cfg); err != nil {
		return err
	}
	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodGet
	}
	if !allowedMethods[method] {
		return configError("unsupported http method %q", cfg.Method)
	}
	if cfg.URL == "" {
		return configError("api call url is required")
	}
	// Placeholders are checked as if already substituted.
	u, err := url.Parse(placeholderPattern.ReplaceAllString(cfg.URL, "p"))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return configError("api call url %q must be an absolute http(s) url", cfg.URL)
	}
	if cfg.Auth != nil {
		switch httpclient.AuthType(cfg.Auth.Type) {
		case "", httpclient.AuthNone:
		case httpclient.AuthBearer:
			if cfg.Auth.Token == "" {
				return configError("bearer auth requires a token")
			}
		case httpclient.AuthBasic:
			if cfg.Auth.Username == "" {
				return configError("basic auth requires a username")
			}
		case httpclient.AuthAPIKey:
			if cfg.Auth.APIKey == "" {
				return configError("api_key auth requires api_key")
			}
		default:
			return configError("unsupported auth type %q", cfg.Auth.Type)
		}
	}
	return nil
}

func (s *ApiCallStrategy) Execute(ctx context.Context, req ExecutionRequest) (JobResult, error) {
	if err := s.Validate(req.Configuration); err != nil {
		return JobResult{ExitCode: JOB_EXIT_CODE_FAILED}, err
	}
	var cfg ApiCallConfig
	_ = json.Unmarshal(req.Configuration, &cfg)

	headers := make(map[string]string, len(cfg.Headers)+1)
	for k, v := range cfg.Headers {
		headers[k] = Substitute(v, req.Parameters)
	}
	body := Substitute(cfg.BodyString(), req.Parameters)
	if body != "" && !hasHeader(headers, "Content-Type") && json.Valid([]byte(body)) {
		headers["Content-Type"] = "application/json"
	}

	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodGet
	}
	call := httpclient.Request{
		Method:  method,
		URL:     Substitute(cfg.URL, req.Parameters),
		Headers: headers,
	}
	if body != "" {
		call.Body = body
	}
	if cfg.Auth != nil {
		call.Auth = &httpclient.Auth{
			Type:       httpclient.AuthType(cfg.Auth.Type),
			Token:      Substitute(cfg.Auth.Token, req.Parameters),
			Username:   Substitute(cfg.Auth.Username, req.Parameters),
			Password:   Substitute(cfg.Auth.Password, req.Parameters),
			HeaderName: cfg.Auth.HeaderName,
			APIKey:     Substitute(cfg.Auth.APIKey, req.Parameters),
		}
	}

	resp, err := s.httpClient.Do(ctx, call)
	if err != nil {
		result := JobResult{ExitCode: JOB_EXIT_CODE_FAILED}
		if resp != nil {
			result.ExitCode = int32(resp.StatusCode)
			result.Output = utils.Truncate(string(resp.Body), s.maxOutput)
		}
		return result, executorError(err, "api call failed")
	}

	output := utils.Truncate(string(resp.Body), s.maxOutput)
	result := JobResult{ExitCode: int32(resp.StatusCode), Output: output}
	if !resp.IsSuccess() {
		var err error
		if output == "" {
			err = executorError(nil, "%s %s returned %d", call.Method, call.URL, resp.StatusCode)
		} else {
			err = errors.WithDetail(executorError(nil, "%s %s returned %d: %s", call.Method, call.URL, resp.StatusCode, utils.Truncate(output, 200)), output)
		}
		return result, err
	}
	result.Success = true
	return result, nil
}

func hasHeader(headers map[string]string, name string) bool {
	for k := range headers {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}
