package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	testhelpers "github.com/bitrise-io/go-chunkfetch/internal/testing"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string][]byte
	// headErrs are returned by consecutive HeadObject calls before the object is looked up.
	headErrs  []error
	headCalls int
	// truncate shortens every GetObject body by this many bytes without changing the declared length.
	truncate int
	ranges   []string
}

func (f *fakeS3) HeadObject(_ context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.headCalls++
	if len(f.headErrs) > 0 {
		err := f.headErrs[0]
		f.headErrs = f.headErrs[1:]
		return nil, err
	}

	data, ok := f.objects[aws.ToString(params.Bucket)+"/"+aws.ToString(params.Key)]
	if !ok {
		return nil, &types.NotFound{Message: aws.String("not found")}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func (f *fakeS3) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(params.Bucket)+"/"+aws.ToString(params.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("no such key")}
	}

	f.ranges = append(f.ranges, aws.ToString(params.Range))
	var start, end int
	if _, err := fmt.Sscanf(aws.ToString(params.Range), "bytes=%d-%d", &start, &end); err != nil {
		return nil, err
	}
	body := data[start : end+1]
	declared := int64(len(body))
	body = body[:len(body)-f.truncate]

	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: aws.Int64(declared),
	}, nil
}

func TestS3Session_OpenAndRead(t *testing.T) {
	data := testhelpers.Payload(1000, 4)
	client := &fakeS3{objects: map[string][]byte{"bucket/path/to/object.bin": data}}
	session := newS3Session(client, 3, 0, log.NewLogger())

	object, err := session.Open(context.Background(), "s3://bucket/path/to/object.bin")
	require.NoError(t, err)
	assert.Equal(t, "object.bin", object.Name())
	assert.Equal(t, int64(1000), object.Size())
	assert.False(t, object.IsContainer())

	stream, err := object.OpenStream(context.Background())
	require.NoError(t, err)

	buf := make([]byte, 400)
	require.NoError(t, stream.Seek(400))
	n, err := stream.ReadInto(context.Background(), buf)
	require.NoError(t, err)
	assert.Equal(t, data[400:800], buf[:n])

	n, err = stream.ReadInto(context.Background(), buf)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, data[800:], buf[:n])

	assert.Equal(t, []string{"bytes=400-799", "bytes=800-999"}, client.ranges)
}

func TestS3Session_Open_Container(t *testing.T) {
	client := &fakeS3{}
	session := newS3Session(client, 3, 0, log.NewLogger())

	for _, path := range []string{"s3://bucket", "s3://bucket/", "s3://bucket/prefix/"} {
		object, err := session.Open(context.Background(), path)
		require.NoError(t, err, path)
		assert.True(t, object.IsContainer(), path)
	}
	assert.Zero(t, client.headCalls)
}

func TestS3Session_Open_Errors(t *testing.T) {
	transient := errors.New("connection reset")

	tests := []struct {
		name          string
		headErrs      []error
		wantErr       error
		wantHeadCalls int
	}{
		{
			name:          "missing key",
			wantErr:       ErrNotFound,
			wantHeadCalls: 1,
		},
		{
			name:          "access denied",
			headErrs:      []error{&smithy.GenericAPIError{Code: "AccessDenied", Message: "Access Denied"}},
			wantErr:       ErrAuthentication,
			wantHeadCalls: 1,
		},
		{
			name:          "expired token",
			headErrs:      []error{&smithy.GenericAPIError{Code: "ExpiredToken"}},
			wantErr:       ErrAuthentication,
			wantHeadCalls: 1,
		},
		{
			name:          "transient errors exhaust retries",
			headErrs:      []error{transient, transient, transient, transient},
			wantErr:       transient,
			wantHeadCalls: 4,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeS3{objects: map[string][]byte{}, headErrs: tt.headErrs}
			_, err := newS3Session(client, 3, 0, log.NewLogger()).Open(context.Background(), "s3://bucket/object.bin")
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantHeadCalls, client.headCalls)
		})
	}
}

func TestS3Session_Open_RetriesTransientErrors(t *testing.T) {
	client := &fakeS3{
		objects:  map[string][]byte{"bucket/object.bin": []byte("content")},
		headErrs: []error{errors.New("timeout"), &smithy.GenericAPIError{Code: "SlowDown"}},
	}

	object, err := newS3Session(client, 3, 0, log.NewLogger()).Open(context.Background(), "s3://bucket/object.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(7), object.Size())
	assert.Equal(t, 3, client.headCalls)
}

func TestS3Stream_TruncatedBodyIsNotAShortRead(t *testing.T) {
	client := &fakeS3{objects: map[string][]byte{"bucket/object.bin": testhelpers.Payload(100, 5)}, truncate: 10}
	object, err := newS3Session(client, 0, 0, log.NewLogger()).Open(context.Background(), "s3://bucket/object.bin")
	require.NoError(t, err)
	stream, err := object.OpenStream(context.Background())
	require.NoError(t, err)

	n, err := stream.ReadInto(context.Background(), make([]byte, 50))
	assert.Equal(t, 40, n)
	assert.ErrorContains(t, err, "truncated")
	assert.NotErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.NotErrorIs(t, err, io.EOF)
}

func Test_classifyS3Error(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{name: "typed not found", err: &types.NotFound{}, wantErr: ErrNotFound},
		{name: "typed no such bucket", err: &types.NoSuchBucket{}, wantErr: ErrNotFound},
		{name: "no such key code", err: &smithy.GenericAPIError{Code: "NoSuchKey"}, wantErr: ErrNotFound},
		{name: "signature mismatch", err: &smithy.GenericAPIError{Code: "SignatureDoesNotMatch"}, wantErr: ErrAuthentication},
		{name: "invalid access key", err: &smithy.GenericAPIError{Code: "InvalidAccessKeyId"}, wantErr: ErrAuthentication},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classifyS3Error(tt.err), tt.wantErr)
		})
	}

	other := &smithy.GenericAPIError{Code: "InternalError"}
	err := classifyS3Error(other)
	assert.ErrorIs(t, err, other)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrAuthentication)
}

func Test_parseS3Path(t *testing.T) {
	bucket, key, err := parseS3Path("s3://my-bucket/a/b/c.tar")
	require.NoError(t, err)
	assert.Equal(t, "my-bucket", bucket)
	assert.Equal(t, "a/b/c.tar", key)

	_, _, err = parseS3Path("s3:///key")
	assert.Error(t, err)
}

func TestNewS3Session_RequiresRegion(t *testing.T) {
	_, err := NewS3Session(context.Background(), S3SessionParams{}, log.NewLogger())
	assert.ErrorContains(t, err, "region must not be empty")
}
