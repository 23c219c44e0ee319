package store

import (
	"errors"
	"fmt"

	"cipherlink/internal/domain"
)

// ErrDuplicateBlock is returned by AppendBlock when the height is taken.
var ErrDuplicateBlock = errors.New("block height already exists")

// storageErr tags err as a storage failure while keeping it matchable.
func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStorage, err)
}

func hasState(states []domain.LifecycleState, s domain.LifecycleState) bool {
	if len(states) == 0 {
		return true
	}
	for _, want := range states {
		if want == s {
			return true
		}
	}
	return false
}
