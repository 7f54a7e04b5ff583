package github

import (
	"fmt"

	"github.com/bitfsorg/contribsplit/revshare"
)

var (
	// ErrNotFound indicates GitHub answered 404.
	ErrNotFound = fmt.Errorf("%w: github", revshare.ErrProviderNotFound)

	// ErrRateLimited indicates the request was still throttled after retries.
	ErrRateLimited = fmt.Errorf("%w: github", revshare.ErrRateLimited)

	// ErrUnauthorized indicates GitHub rejected the token.
	ErrUnauthorized = fmt.Errorf("%w: github", revshare.ErrAuth)

	// ErrTransport indicates the request never produced a usable response.
	ErrTransport = fmt.Errorf("%w: github", revshare.ErrNetwork)

	// ErrUnexpectedStatus indicates any other non-2xx answer.
	ErrUnexpectedStatus = fmt.Errorf("%w: github: unexpected status", revshare.ErrExternal)

	// ErrBadResponse indicates a body that does not decode.
	ErrBadResponse = fmt.Errorf("%w: github: malformed response", revshare.ErrExternal)
)
