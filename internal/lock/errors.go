package lock

import "errors"

var ErrLockUnavailable = errors.New("sync lock unavailable")
