package redis

import (
	"errors"
	"fmt"
)

var (
	ErrRedisConnect = errors.New("redis connect error")
)

func ConnectError(err error, name string) error {
	return fmt.Errorf("%w %s: %w", ErrRedisConnect, name, err)
}
