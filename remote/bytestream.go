package remote

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"google.golang.org/genproto/googleapis/bytestream"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const defaultDialTimeout = 10 * time.Second

// BytestreamSessionParams ...
type BytestreamSessionParams struct {
	UseInsecure bool
	Host        string
	DialTimeout time.Duration
	Token       string
}

type bytestreamSession struct {
	client bytestream.ByteStreamClient
	conn   io.Closer
	token  string
	logger log.Logger
}

// NewBytestreamSession returns a session reading content addressed blobs over the gRPC ByteStream API.
// Paths look like bytestream://host:port/[instance/]blobs/<hash>/<size>.
func NewBytestreamSession(ctx context.Context, p BytestreamSessionParams, logger log.Logger) (Session, error) {
	opts := make([]grpc.DialOption, 0)
	if p.UseInsecure {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})))
	}

	timeout := p.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	conn, err := grpc.DialContext(ctx, p.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", p.Host, err)
	}

	return newBytestreamSession(bytestream.NewByteStreamClient(conn), conn, p.Token, logger), nil
}

func newBytestreamSession(client bytestream.ByteStreamClient, conn io.Closer, token string, logger log.Logger) *bytestreamSession {
	return &bytestreamSession{
		client: client,
		conn:   conn,
		token:  token,
		logger: logger,
	}
}

func (s *bytestreamSession) Open(ctx context.Context, path string) (Object, error) {
	resourceName, hash, size, err := parseBlobPath(path)
	if err != nil {
		return nil, err
	}

	object := &bytestreamObject{session: s, resourceName: resourceName, hash: hash, size: size}
	if size == 0 {
		return object, nil
	}

	// Probe one byte so a missing blob or rejected token is reported before any chunk is read.
	stream := &bytestreamStream{object: object}
	probe := make([]byte, 1)
	if _, err := stream.ReadInto(ctx, probe); err != nil {
		return nil, fmt.Errorf("open %s: %w", resourceName, err)
	}
	s.logger.Debugf("Blob %s is readable (%d bytes)", resourceName, size)

	return object, nil
}

func (s *bytestreamSession) Close() error {
	return s.conn.Close()
}

func (s *bytestreamSession) outgoingContext(ctx context.Context) context.Context {
	if s.token == "" {
		return ctx
	}
	md := metadata.Pairs("authorization", fmt.Sprintf("Bearer %s", s.token))
	return metadata.NewOutgoingContext(ctx, md)
}

type bytestreamObject struct {
	session      *bytestreamSession
	resourceName string
	hash         string
	size         int64
}

func (o *bytestreamObject) Name() string      { return o.hash }
func (o *bytestreamObject) Size() int64       { return o.size }
func (o *bytestreamObject) IsContainer() bool { return false }

func (o *bytestreamObject) OpenStream(context.Context) (Stream, error) {
	return &bytestreamStream{object: o}, nil
}

type bytestreamStream struct {
	object *bytestreamObject
	offset int64
}

func (s *bytestreamStream) Seek(offset int64) error {
	if offset < 0 {
		return fmt.Errorf("negative offset %d", offset)
	}
	s.offset = offset
	return nil
}

func (s *bytestreamStream) ReadInto(ctx context.Context, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	readReq := &bytestream.ReadRequest{
		ResourceName: s.object.resourceName,
		ReadOffset:   s.offset,
		ReadLimit:    int64(len(buf)),
	}
	stream, err := s.object.session.client.Read(s.object.session.outgoingContext(ctx), readReq)
	if err != nil {
		return 0, fmt.Errorf("initiate read: %w", classifyStatus(err))
	}

	n := 0
	for n < len(buf) {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.offset += int64(n)
			return n, fmt.Errorf("stream receive: %w", classifyStatus(err))
		}
		n += copy(buf[n:], resp.Data)
	}

	s.offset += int64(n)
	if n < len(buf) {
		return n, io.ErrUnexpectedEOF
	}
	return n, nil
}

func (s *bytestreamStream) Close() error {
	return nil
}

func classifyStatus(err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, status.Convert(err).Message())
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%w: %s", ErrAuthentication, status.Convert(err).Message())
	default:
		return err
	}
}

// parseBlobPath extracts the resource name, hash and size from a bytestream URL.
func parseBlobPath(path string) (string, string, int64, error) {
	u, err := url.Parse(path)
	if err != nil {
		return "", "", 0, fmt.Errorf("parse %s: %w", path, err)
	}

	resourceName := strings.Trim(u.Path, "/")
	parts := strings.Split(resourceName, "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] != "blobs" {
			continue
		}
		size, err := strconv.ParseInt(parts[i+2], 10, 64)
		if err != nil || size < 0 {
			return "", "", 0, fmt.Errorf("invalid blob size %q in %s", parts[i+2], path)
		}
		return resourceName, parts[i+1], size, nil
	}

	return "", "", 0, fmt.Errorf("%s is not a blob resource name (expected .../blobs/<hash>/<size>)", path)
}
