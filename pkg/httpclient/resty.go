package httpclient

import (
	"context"
	"net/http"
	"strings"
	"time"

	"automation-scheduler/pkg/errors"

	"github.com/go-resty/resty/v2"
)

const defaultAPIKeyHeader = "X-API-Key"

type RestyClient struct {
	client *resty.Client
}

// New builds a client. baseURL and bearerToken may be empty.
func New(baseURL string, timeout time.Duration, bearerToken string) HTTPClient {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if baseURL != "" {
		client.SetBaseURL(baseURL)
	}
	if bearerToken != "" {
		client.SetAuthToken(bearerToken)
	}

	return &RestyClient{client: client}
}

// GET request with optional query params
func (rc *RestyClient) Get(ctx context.Context, endpoint string, queryParams map[string]string, headers map[string]string, result interface{}) (*BaseResponse, error) {
	return rc.Do(ctx, Request{
		Method:      http.MethodGet,
		URL:         endpoint,
		QueryParams: queryParams,
		Headers:     headers,
		Result:      result,
	})
}

// POST request with body
func (rc *RestyClient) Post(ctx context.Context, endpoint string, body interface{}, headers map[string]string, result interface{}) (*BaseResponse, error) {
	return rc.Do(ctx, Request{
		Method:  http.MethodPost,
		URL:     endpoint,
		Body:    body,
		Headers: headers,
		Result:  result,
	})
}

// PUT request
func (rc *RestyClient) Put(ctx context.Context, endpoint string, body interface{}, headers map[string]string, result interface{}) (*BaseResponse, error) {
	return rc.Do(ctx, Request{
		Method:  http.MethodPut,
		URL:     endpoint,
		Body:    body,
		Headers: headers,
		Result:  result,
	})
}

// DELETE request
func (rc *RestyClient) Delete(ctx context.Context, endpoint string, headers map[string]string, result interface{}) (*BaseResponse, error) {
	return rc.Do(ctx, Request{
		Method:  http.MethodDelete,
		URL:     endpoint,
		Headers: headers,
		Result:  result,
	})
}

// Do executes req. A non-2xx answer is not an error here; callers decide.
func (rc *RestyClient) Do(ctx context.Context, req Request) (*BaseResponse, error) {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}

	r := rc.client.R().SetContext(ctx)
	if req.Result != nil {
		r.SetResult(req.Result)
	}
	if req.QueryParams != nil {
		r.SetQueryParams(req.QueryParams)
	}
	if req.Headers != nil {
		r.SetHeaders(req.Headers)
	}
	if req.Body != nil {
		r.SetBody(req.Body)
	}
	if err := applyAuth(r, req.Auth); err != nil {
		return nil, err
	}

	resp, err := r.Execute(method, req.URL)
	if resp == nil {
		return nil, errors.Wrapf(err, "%s %s", method, req.URL)
	}
	out := &BaseResponse{
		StatusCode: resp.StatusCode(),
		Body:       resp.Body(),
		Headers:    resp.Header(),
	}
	if err != nil {
		return out, errors.Wrapf(err, "%s %s", method, req.URL)
	}
	return out, nil
}

func applyAuth(r *resty.Request, auth *Auth) error {
	if auth == nil {
		return nil
	}
	switch auth.Type {
	case "", AuthNone:
	case AuthBearer:
		if auth.Token == "" {
			return errors.New("bearer auth requires a token")
		}
		r.SetAuthToken(auth.Token)
	case AuthBasic:
		if auth.Username == "" {
			return errors.New("basic auth requires a username")
		}
		r.SetBasicAuth(auth.Username, auth.Password)
	case AuthAPIKey:
		if auth.APIKey == "" {
			return errors.New("api_key auth requires a key")
		}
		header := auth.HeaderName
		if header == "" {
			header = defaultAPIKeyHeader
		}
		r.SetHeader(header, auth.APIKey)
	default:
		return errors.Newf("unsupported auth type %q", auth.Type)
	}
	return nil
}
