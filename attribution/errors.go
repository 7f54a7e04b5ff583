package attribution

import (
	"errors"
	"fmt"

	"github.com/bitfsorg/contribsplit/revshare"
)

var (
	// ErrRepositoryNotFound indicates the provider does not know the repository.
	ErrRepositoryNotFound = fmt.Errorf("%w: attribution: repository not found", revshare.ErrNotFound)

	// ErrProvider wraps every other commit history provider failure. The
	// provider's own error stays in the chain.
	ErrProvider = errors.New("attribution: provider error")

	// ErrInvalidRepository indicates an empty owner or repository name.
	ErrInvalidRepository = fmt.Errorf("%w: attribution: owner and repo are required", revshare.ErrValidation)
)
