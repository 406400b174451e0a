package sierra

import (
	"context"

	"golang.org/x/oauth2"
)

var _ oauth2.TokenSource = (*Session)(nil)

// Token returns the session's current token, refreshing it first when it
// is stale. It lets a Session back an oauth2.Transport or oauth2.NewClient.
func (s *Session) Token() (*oauth2.Token, error) {
	if s.authorization.IsExpired() {
		if err := s.FetchNewToken(context.Background()); err != nil {
			return nil, err
		}
	}
	return s.authorization.OAuth2(), nil
}
