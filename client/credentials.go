package client

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/ridge/livequery/wire"
	"golang.org/x/oauth2"
)

// CredentialsProvider supplies the identity fields the connection presents to
// the server at handshake time and with every subscription command.
type CredentialsProvider interface {
	Credentials(ctx context.Context) (wire.Credentials, error)
}

// StaticCredentials is a CredentialsProvider with fixed values
type StaticCredentials wire.Credentials

// Credentials implements CredentialsProvider
func (s StaticCredentials) Credentials(ctx context.Context) (wire.Credentials, error) {
	return wire.Credentials(s), nil
}

// NewStaticCredentials returns a StaticCredentials for the given values,
// filling a missing InstallationID with a freshly generated identity.
func NewStaticCredentials(creds wire.Credentials) StaticCredentials {
	if creds.InstallationID == "" {
		creds.InstallationID = uuid.NewString()
	}
	return StaticCredentials(creds)
}

// TokenSourceCredentials is a CredentialsProvider that takes the session
// token from an OAuth2 token source on every connection attempt, so that a
// refreshed token is picked up by the next handshake.
type TokenSourceCredentials struct {
	Base   wire.Credentials
	Source oauth2.TokenSource
}

// Credentials implements CredentialsProvider
func (t TokenSourceCredentials) Credentials(ctx context.Context) (wire.Credentials, error) {
	token, err := t.Source.Token()
	if err != nil {
		return wire.Credentials{}, fmt.Errorf("failed to obtain session token: %w", err)
	}
	creds := t.Base
	creds.SessionToken = token.AccessToken
	return creds, nil
}
