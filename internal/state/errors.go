package state

import (
	"errors"
	"fmt"

	"github.com/DoyleJ11/color-war-backend/internal/canvas"
)

// unavailable tags a persistence failure so callers can match canvas.ErrStoreUnavailable
// while the backend error stays in the chain.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(canvas.ErrStoreUnavailable, err))
}
