package provider

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"mdwarehouse/internal/config"
	apperrors "mdwarehouse/internal/errors"
	"mdwarehouse/internal/infrastructure"
)

// newRestClient builds the shared resty client of a vendor
func newRestClient(cfg config.ProviderConfig, fetch config.FetchConfig) *resty.Client {
	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetHeader("Accept", "application/json")
	if fetch.RequestTimeout > 0 {
		client.SetTimeout(fetch.RequestTimeout)
	} else {
		client.SetTimeout(30 * time.Second)
	}
	client.SetRetryCount(fetch.RetryCount)
	client.SetRetryWaitTime(500 * time.Millisecond)
	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		return err != nil || r.StatusCode() == 429 || r.StatusCode() >= 500
	})
	return client
}

// resolveKey fetches the vendor key from the startup credentials
func resolveKey(cfg config.ProviderConfig, creds *config.Credentials) (string, error) {
	key, err := creds.Key(cfg.Source)
	if err != nil {
		return "", apperrors.NewConfigError("provider credentials missing", err).
			WithContext("source", cfg.Source)
	}
	return key, nil
}

// checkResponse turns transport failures and non-2xx statuses into NETWORK
// errors
func checkResponse(resp *resty.Response, err error, endpoint string) error {
	if err != nil {
		return apperrors.NewNetworkError("request failed", err).WithContext("endpoint", endpoint)
	}
	if resp.IsError() {
		return apperrors.NewNetworkError(fmt.Sprintf("unexpected status %d", resp.StatusCode()), nil).
			WithContext("endpoint", endpoint)
	}
	return nil
}

func noData(endpoint, reason string) error {
	return apperrors.NewNetworkError(reason, ErrNoData).WithContext("endpoint", endpoint)
}

func providerLogger(logger *slog.Logger, source string) *slog.Logger {
	return infrastructure.WithComponent(logger, "provider").With(slog.String("source", source))
}
