package provider

import (
	"context"
	"strconv"
	"time"

	apperrors "github.com/relaypost/relaypost-backend/internal/errors"
	"github.com/relaypost/relaypost-backend/internal/models"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// CredentialStore persists refreshed credential bundles back to the
// connection record before any API call proceeds with them
type CredentialStore interface {
	UpdateTokens(ctx context.Context, id uint, accessToken, refreshToken string, expiry time.Time) error
}

// tokenManager refreshes expired access tokens. The singleflight group keyed
// by connection ID guarantees that concurrent calls for the same mailbox
// share one refresh instead of racing the token endpoint.
type tokenManager struct {
	oauth *oauth2.Config
	store CredentialStore
	group singleflight.Group
}

func newTokenManager(cfg Config, store CredentialStore) *tokenManager {
	return &tokenManager{
		oauth: &oauth2.Config{
			ClientID:     cfg.OAuthClientID,
			ClientSecret: cfg.OAuthClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: cfg.OAuthTokenURL},
		},
		store: store,
	}
}

// accessToken returns a valid access token for the connection, refreshing
// and persisting it first when the stored one has expired. The connection's
// in-memory credential fields are updated alongside the store.
func (m *tokenManager) accessToken(ctx context.Context, conn *models.MailboxConnection) (string, error) {
	if !conn.TokenExpired(time.Now()) {
		return conn.AccessToken, nil
	}

	v, err, _ := m.group.Do(strconv.FormatUint(uint64(conn.ID), 10), func() (interface{}, error) {
		return m.refresh(ctx, conn)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *tokenManager) refresh(ctx context.Context, conn *models.MailboxConnection) (string, error) {
	if conn.RefreshToken == "" {
		return "", apperrors.NewAuthError("token_refresh", conn.EmailAddress,
			"access token expired and no refresh token is stored")
	}

	src := m.oauth.TokenSource(ctx, &oauth2.Token{
		AccessToken:  conn.AccessToken,
		RefreshToken: conn.RefreshToken,
		Expiry:       conn.TokenExpiry,
	})

	tok, err := src.Token()
	if err != nil {
		return "", apperrors.NewAuthError("token_refresh", conn.EmailAddress, err.Error())
	}

	// Persist before proceeding so a crash cannot lose the rotated bundle
	if err := m.store.UpdateTokens(ctx, conn.ID, tok.AccessToken, tok.RefreshToken, tok.Expiry); err != nil {
		return "", apperrors.Wrap(err, "failed to persist refreshed credentials")
	}

	conn.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		conn.RefreshToken = tok.RefreshToken
	}
	conn.TokenExpiry = tok.Expiry

	return tok.AccessToken, nil
}
