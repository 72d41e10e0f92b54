package storage

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
)

type upload struct {
	store   *Store
	file    *os.File
	path    string
	size    int64
	written int64
}

func (u *upload) Write(p []byte) (int, error) {
	if u.written+int64(len(p)) > u.size {
		return 0, fmt.Errorf("upload exceeds its declared size of %d bytes", u.size)
	}
	n, err := u.file.Write(p)
	u.written += int64(n)
	return n, err
}

func (u *upload) Path() string { return u.path }

func (u *upload) Commit() error {
	if u.written != u.size {
		return fmt.Errorf("upload is incomplete: %d of %d bytes written", u.written, u.size)
	}
	if err := u.file.Sync(); err != nil {
		_ = u.file.Close()
		return errors.Wrapf(err, "failed to sync %q", u.path)
	}
	return errors.Wrapf(u.file.Close(), "failed to close %q", u.path)
}

func (u *upload) Abort() error {
	_ = u.file.Close()
	return u.store.Remove(context.Background(), u.path)
}
