//go:build windows

package container

import (
	"context"
	"errors"
)

// Delegate is unavailable: udocker only runs on linux.
func (u *Udocker) Delegate(ctx context.Context, env []string, args ...string) (int, error) {
	return -1, errors.New("udocker requires linux")
}
