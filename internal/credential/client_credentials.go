package credential

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"premium-collections/internal/clock"
	"premium-collections/internal/domain"
	"premium-collections/internal/errors"
)

const defaultTokenLifetime = time.Hour

// ClientCredentials performs the OAuth2 client-credentials grant against the
// upstream token endpoint. Caching is left to Cache.
type ClientCredentials struct {
	config     clientcredentials.Config
	httpClient *http.Client
	clock      clock.Clock
	logger     *slog.Logger
}

func NewClientCredentials(tokenURL, clientID, clientSecret, scope string, httpClient *http.Client, clk clock.Clock, logger *slog.Logger) *ClientCredentials {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &ClientCredentials{
		config: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
			Scopes:       strings.Fields(scope),
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		httpClient: httpClient,
		clock:      clk,
		logger:     logger,
	}
}

func (c *ClientCredentials) Authenticate(ctx context.Context) (*domain.Credential, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	token, err := c.config.Token(ctx)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			c.logger.Warn("Token endpoint rejected credentials", "status", retrieveErr.Response.StatusCode)
		}
		return nil, errors.ErrAuthenticationFailed.Wrap(err)
	}

	expiresAt := token.Expiry
	if expiresAt.IsZero() {
		expiresAt = c.clock.Now().Add(defaultTokenLifetime)
	}

	return &domain.Credential{
		Token:     token.AccessToken,
		ExpiresAt: expiresAt,
	}, nil
}
