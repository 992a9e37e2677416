package gridfile

import (
	"errors"
	"os"
)

// LockFile is the advisory lock file inside a data directory.
const LockFile = ".lock"

var ErrLocked = errors.New("data directory is locked by another process")

// Lock is an exclusive advisory lock on a data directory.
type Lock struct {
	file *os.File
}

// Release unlocks and closes the lock file. It is safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := unlockFile(l.file)
	if cerr := l.file.Close(); err == nil {
		err = cerr
	}
	l.file = nil
	return err
}
