// Package remote gives the transfer engine seekable read access to remote data objects.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
)

var (
	// ErrNotFound is returned when the remote object does not exist.
	ErrNotFound = errors.New("no such remote data object")
	// ErrAuthentication is returned when the backend rejects the credentials.
	ErrAuthentication = errors.New("authentication failed")
)

// Stream is a seekable reader over one remote object. A Stream is not safe for concurrent use;
// every reader opens its own.
type Stream interface {
	// Seek sets the offset of the next ReadInto.
	Seek(offset int64) error
	// ReadInto fills buf from the current offset and advances it by the returned count.
	// A count smaller than len(buf) comes with io.EOF or io.ErrUnexpectedEOF when the object ends first.
	ReadInto(ctx context.Context, buf []byte) (int, error)
	Close() error
}

// Object is a handle to a remote path.
type Object interface {
	// Name is the base name of the object, used as the local file name.
	Name() string
	// Size is the byte length of the object.
	Size() int64
	// IsContainer reports whether the path is a collection rather than a data object.
	IsContainer() bool
	OpenStream(ctx context.Context) (Stream, error)
}

// Session resolves remote paths to objects.
type Session interface {
	Open(ctx context.Context, path string) (Object, error)
	Close() error
}

// Credentials configures every backend. Unused fields are ignored.
type Credentials struct {
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	S3Endpoint         string
	NumFullRetries     int

	HTTPToken string

	BytestreamToken    string
	BytestreamInsecure bool
	DialTimeout        time.Duration
}

const (
	fileScheme       = "file"
	s3Scheme         = "s3"
	httpScheme       = "http"
	httpsScheme      = "https"
	bytestreamScheme = "bytestream"
)

// NewSession returns a session for the backend serving path.
// Plain paths and file:// URLs are read from the local filesystem.
func NewSession(ctx context.Context, path string, creds Credentials, logger log.Logger) (Session, error) {
	scheme := schemeOf(path)
	logger.Debugf("Remote path %s uses scheme %q", path, scheme)

	switch scheme {
	case "", fileScheme:
		return NewLocalSession(), nil
	case s3Scheme:
		return NewS3Session(ctx, S3SessionParams{
			Region:          creds.AWSRegion,
			AccessKeyID:     creds.AWSAccessKeyID,
			SecretAccessKey: creds.AWSSecretAccessKey,
			Endpoint:        creds.S3Endpoint,
			NumFullRetries:  creds.NumFullRetries,
		}, logger)
	case httpScheme, httpsScheme:
		return NewHTTPSession(creds.HTTPToken, logger), nil
	case bytestreamScheme:
		u, err := url.Parse(path)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return NewBytestreamSession(ctx, BytestreamSessionParams{
			Host:        u.Host,
			Token:       creds.BytestreamToken,
			UseInsecure: creds.BytestreamInsecure,
			DialTimeout: creds.DialTimeout,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported remote scheme %q in %s", scheme, path)
	}
}

// ObjectName returns the name the object at path has once opened, without contacting any backend.
func ObjectName(path string) string {
	switch schemeOf(path) {
	case "", fileScheme:
		return baseName(strings.TrimPrefix(path, fileURLPrefix))
	case bytestreamScheme:
		if _, hash, _, err := parseBlobPath(path); err == nil {
			return hash
		}
	}

	u, err := url.Parse(path)
	if err != nil {
		return baseName(path)
	}
	if name := baseName(u.Path); name != "" {
		return name
	}
	return u.Host
}

func schemeOf(path string) string {
	i := strings.Index(path, "://")
	if i <= 0 {
		return ""
	}
	return strings.ToLower(path[:i])
}

// baseName returns the last non-empty element of a slash separated path.
func baseName(p string) string {
	p = strings.TrimRight(p, "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}
