package gmail

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"KnowledgeScanner/internal/config"
	"KnowledgeScanner/internal/domain"
)

// NewService builds a Gmail API client. Credentials come from a service
// account or authorized-user JSON file; an explicit endpoint without
// credentials is used against local fakes.
func NewService(ctx context.Context, cfg config.GmailConfig, extra ...option.ClientOption) (*gmail.Service, error) {
	opts := []option.ClientOption{
		option.WithScopes(gmail.GmailReadonlyScope, gmail.GmailSendScope),
	}
	switch {
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	case cfg.Endpoint != "":
		opts = append(opts, option.WithoutAuthentication())
	default:
		return nil, domain.Configf("gmail credentials file is not configured")
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	opts = append(opts, extra...)

	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, domain.Configf("gmail service: %v", err)
	}
	return svc, nil
}

// classify maps Gmail API failures onto the error taxonomy.
func classify(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError:
			return fmt.Errorf("%w: gmail %s: %v", domain.ErrTransient, op, err)
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
			return fmt.Errorf("%w: gmail %s: %v", domain.ErrConfiguration, op, err)
		default:
			return fmt.Errorf("gmail %s: %w", op, err)
		}
	}
	// network failures and timeouts
	return fmt.Errorf("%w: gmail %s: %v", domain.ErrTransient, op, err)
}
