package cache

import (
	"errors"
	"time"
)

var (
	ErrorKeyNotFound = errors.New("key_not_found")
)

type Cache interface {
	Set(key string, value string, ttl time.Duration) (err error)
	Get(key string) (value string, err error)
	Increment(key string, ttl time.Duration) (count int64, err error)
	Del(key string) (err error)
}
