package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/hashicorp/go-retryablehttp"
)

type httpSession struct {
	client *retryablehttp.Client
	token  string
	logger log.Logger
}

// NewHTTPSession returns a session reading objects over HTTP range requests.
// A non-empty token is sent as a bearer token.
func NewHTTPSession(token string, logger log.Logger) Session {
	client := retryhttp.NewClient(logger)
	client.CheckRetry = createCustomRetryFunction(logger)
	return newHTTPSession(client, token, logger)
}

func newHTTPSession(client *retryablehttp.Client, token string, logger log.Logger) *httpSession {
	return &httpSession{
		client: client,
		token:  token,
		logger: logger,
	}
}

func createCustomRetryFunction(logger log.Logger) func(context.Context, *http.Response, error) (bool, error) {
	return func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		retry, checkErr := retryablehttp.DefaultRetryPolicy(ctx, resp, err)
		logger.Debugf("CheckRetry: retry=%v ; err=%+v ; requestErr=%+v", retry, checkErr, err)
		return retry, checkErr
	}
}

func (s *httpSession) Open(ctx context.Context, path string) (Object, error) {
	u, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	object := &httpObject{session: s, url: path, name: baseName(u.Path)}
	if object.name == "" {
		object.name = u.Host
	}
	if u.Path == "" || strings.HasSuffix(u.Path, "/") {
		object.container = true
		return object, nil
	}

	req, err := s.newRequest(ctx, http.MethodHead, path)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("head %s: %w", path, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if err := checkStatus(resp, http.StatusOK); err != nil {
		return nil, fmt.Errorf("head %s: %w", path, err)
	}
	if resp.ContentLength < 0 {
		return nil, fmt.Errorf("head %s: server did not report a content length", path)
	}
	if accept := resp.Header.Get("Accept-Ranges"); accept != "bytes" {
		s.logger.Debugf("%s does not advertise byte ranges (Accept-Ranges: %q)", path, accept)
	}

	object.size = resp.ContentLength
	return object, nil
}

func (s *httpSession) Close() error {
	s.client.HTTPClient.CloseIdleConnections()
	return nil
}

func (s *httpSession) newRequest(ctx context.Context, method, target string) (*retryablehttp.Request, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", method, err)
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	return req, nil
}

type httpObject struct {
	session   *httpSession
	url       string
	name      string
	size      int64
	container bool
}

func (o *httpObject) Name() string      { return o.name }
func (o *httpObject) Size() int64       { return o.size }
func (o *httpObject) IsContainer() bool { return o.container }

func (o *httpObject) OpenStream(context.Context) (Stream, error) {
	return &httpStream{object: o}, nil
}

type httpStream struct {
	object *httpObject
	offset int64
}

func (s *httpStream) Seek(offset int64) error {
	if offset < 0 {
		return fmt.Errorf("negative offset %d", offset)
	}
	s.offset = offset
	return nil
}

func (s *httpStream) ReadInto(ctx context.Context, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	if s.offset >= s.object.size {
		return 0, io.EOF
	}

	end := s.offset + int64(len(buf)) - 1
	if end >= s.object.size {
		end = s.object.size - 1
	}

	req, err := s.object.session.newRequest(ctx, http.MethodGet, s.object.url)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", s.offset, end))

	resp, err := s.object.session.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("get range %d-%d: %w", s.offset, end, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	wholeObject := s.offset == 0 && end == s.object.size-1
	if resp.StatusCode == http.StatusOK && !wholeObject {
		return 0, fmt.Errorf("get range %d-%d: server ignored the range request", s.offset, end)
	}
	if err := checkStatus(resp, http.StatusPartialContent, http.StatusOK); err != nil {
		return 0, fmt.Errorf("get range %d-%d: %w", s.offset, end, err)
	}

	want := end - s.offset + 1
	n, err := io.ReadFull(resp.Body, buf[:want])
	s.offset += int64(n)
	if err != nil {
		if resp.ContentLength > int64(n) {
			return n, fmt.Errorf("response body truncated after %d of %d bytes: %v", n, resp.ContentLength, err)
		}
		return n, io.ErrUnexpectedEOF
	}
	if n < len(buf) {
		return n, io.ErrUnexpectedEOF
	}
	return n, nil
}

func (s *httpStream) Close() error {
	return nil
}

func checkStatus(resp *http.Response, accepted ...int) error {
	for _, code := range accepted {
		if resp.StatusCode == code {
			return nil
		}
	}

	switch resp.StatusCode {
	case http.StatusNotFound, http.StatusGone:
		return fmt.Errorf("%w: status %d", ErrNotFound, resp.StatusCode)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrAuthentication, resp.StatusCode)
	}

	errorBody := make([]byte, 1024)
	n, _ := io.ReadAtLeast(resp.Body, errorBody, 1)
	return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(errorBody[:n]))
}
