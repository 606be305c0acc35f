package repository

import (
	"context"
	"fmt"
	"net/url"

	"automation-scheduler/config"
	"automation-scheduler/internal/dto"
	"automation-scheduler/pkg/errors"
	"automation-scheduler/pkg/httpclient"
	"automation-scheduler/pkg/logger"
)

// CredentialRepository is the credential verification capability. A false
// result with a nil error means the credential was checked and rejected.
type CredentialRepository interface {
	VerifyCredentials(ctx context.Context, credentialID string) (bool, error)
}

type credentialRepository struct {
	log        *logger.Logger
	httpClient httpclient.HTTPClient
	apiKey     string
}

func NewCredentialRepository(cfg *config.Config, log *logger.Logger) CredentialRepository {
	return &credentialRepository{
		log:        log,
		httpClient: httpclient.New(cfg.ADR.CredentialBaseURL, cfg.ADR.RequestTimeout, ""),
		apiKey:     cfg.ADR.CredentialAPIKey,
	}
}

func (r *credentialRepository) VerifyCredentials(ctx context.Context, credentialID string) (bool, error) {
	if credentialID == "" {
		return false, nil
	}

	headers := map[string]string{}
	if r.apiKey != "" {
		headers["X-API-Key"] = r.apiKey
	}

	var out dto.CredentialVerifyResponse
	endpoint := fmt.Sprintf("/credentials/%s/verify", url.PathEscape(credentialID))
	resp, err := r.httpClient.Post(ctx, endpoint, nil, headers, &out)
	if err != nil {
		return false, errors.Wrapf(err, "verify credential %s", credentialID)
	}
	if !resp.IsSuccess() {
		return false, errors.Newf("verify credential %s: service returned %d", credentialID, resp.StatusCode)
	}
	if !out.Valid {
		r.log.InfoContext(ctx, "Credential rejected by verification service",
			logger.StringField("credential_id", credentialID),
			logger.StringField("reason", out.Message),
		)
	}
	return out.Valid, nil
}
