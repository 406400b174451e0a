/*
Package sierra provides a client for the Sierra ILS REST API.

# Overview

The package is organized around two types:

  - Token: an OAuth2 client credentials token bound to one Sierra host and
    API version
  - Session: resource operations (bibs, items) authorized by a Token, with
    automatic refresh of a stale token

Create a Token first. NewToken performs the token exchange immediately, so a
Token is always authenticated:

	token, err := sierra.NewToken(ctx, clientID, clientSecret, "https://catalog.example.org",
		sierra.WithAPIVersion("v6"),
		sierra.WithAgent("my-app/1.0"),
	)

Then open a Session with it:

	err = sierra.WithSession(ctx, token, func(ctx context.Context, s *sierra.Session) error {
		resp, err := s.GetBib(ctx, "b12345678", "id", "title")
		if err != nil {
			return err
		}
		var bib map[string]any
		return resp.JSON(&bib)
	})

# Record Numbers

Bib and item identifiers may be given as strings or integers. A leading
record type letter is dropped, and a trailing check digit is dropped without
being verified:

	sierra.ParseSierraNumber("b12345678x") // "12345678"
	sierra.ParseSierraNumber(12345678)     // "12345678"

# Token Refresh

Every resource call checks the token before it is sent. A stale token is
refreshed in place, once, and the request is sent with the new bearer.
Nothing is retried: an error status or a transport failure is returned to
the caller.

A Session also implements oauth2.TokenSource, so the same credentials can
authorize requests made outside this package:

	client := oauth2.NewClient(ctx, session)

# Error Handling

All errors returned by this package are *Error values. Use errors.Is with
the Kind sentinels to branch on them:

	resp, err := session.GetItem(ctx, "i10000001", nil)
	switch {
	case errors.Is(err, sierra.ErrValidation):
		// malformed record number
	case errors.Is(err, sierra.ErrAuth):
		// token exchange failed
	case errors.Is(err, sierra.ErrRequest):
		var serr *sierra.Error
		errors.As(err, &serr)
		log.Printf("status %d: %s", serr.StatusCode, serr.Body)
	}

# Thread Safety

Token and Session are safe for concurrent use. Concurrent calls on a stale
token may each trigger a refresh; the last one to finish wins.
*/
package sierra
