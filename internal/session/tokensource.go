package session

import (
	"golang.org/x/oauth2"

	"github.com/felixgeelhaar/tirecode/internal/errors"
	"github.com/felixgeelhaar/tirecode/internal/tokenstore"
)

// storeTokenSource reads the access token from the store on every call so a
// refresh that lands between two requests is picked up immediately.
type storeTokenSource struct {
	store *tokenstore.Store
}

// TokenSource returns an oauth2.TokenSource backed by store. Do not wrap it
// in oauth2.ReuseTokenSource: the store is the only cache.
func TokenSource(store *tokenstore.Store) oauth2.TokenSource {
	return storeTokenSource{store: store}
}

// Token implements oauth2.TokenSource.
func (s storeTokenSource) Token() (*oauth2.Token, error) {
	token, ok := s.store.AccessToken()
	if !ok || token == "" {
		return nil, errors.NewNotAuthenticatedError()
	}
	return &oauth2.Token{AccessToken: token, TokenType: "Bearer"}, nil
}
