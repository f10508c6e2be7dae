//go:build !unix

package lock

import (
	"errors"
	"os"
)

func tryLock(*os.File) error {
	return errors.New("instance lock is only supported on unix platforms")
}

func unlock(*os.File) error { return nil }
