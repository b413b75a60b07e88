package backup

import (
	"os"
	"time"

	"github.com/studio-b12/gowebdav"

	"github.com/starford/chatsync/internal/apperr"
	"github.com/starford/chatsync/internal/models"
)

// Transport is the subset of WebDAV operations the manager needs.
type Transport interface {
	Connect() error
	ReadDir(path string) ([]os.FileInfo, error)
	Read(path string) ([]byte, error)
	Write(path string, data []byte, perm os.FileMode) error
	Remove(path string) error
	MkdirAll(path string, perm os.FileMode) error
}

// Dialer builds a Transport for a connection configuration.
type Dialer func(cfg models.WebDavConfig) Transport

// WebDavDialer returns a Dialer backed by gowebdav with the given request
// timeout.
func WebDavDialer(timeout time.Duration) Dialer {
	return func(cfg models.WebDavConfig) Transport {
		c := gowebdav.NewClient(cfg.URL, cfg.Username, cfg.Password)
		if timeout > 0 {
			c.SetTimeout(timeout)
		}
		return c
	}
}

// classify maps a transport error onto the error taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case gowebdav.IsErrNotFound(err) || os.IsNotExist(err):
		return apperr.New(op, apperr.ErrNotFound, err)
	case gowebdav.IsErrCode(err, 401) || gowebdav.IsErrCode(err, 403):
		return apperr.New(op, apperr.ErrUnauthenticated, err)
	default:
		return apperr.New(op, apperr.ErrTransport, err)
	}
}
