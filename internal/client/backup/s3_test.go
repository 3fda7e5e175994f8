package backup

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dmitrijs2005/myid/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjects struct {
	objects map[string][]byte
	putErr  error
}

func (f *fakeObjects) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Bucket+"/"+*in.Key] = b
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjects) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	b, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func TestS3Store_PutGet(t *testing.T) {
	fake := &fakeObjects{objects: map[string][]byte{}}
	st := &S3Store{api: fake, bucket: "myid"}
	ctx := context.Background()

	require.NoError(t, st.Put(ctx, "../profile.json", []byte(`{"iv":"x"}`)))
	assert.Contains(t, fake.objects, "myid/exports/profile.json")

	got, err := st.Get(ctx, "profile.json")
	require.NoError(t, err)
	assert.Equal(t, `{"iv":"x"}`, string(got))

	_, err = st.Get(ctx, "missing.json")
	require.ErrorIs(t, err, common.ErrorNotFound)

	fake.putErr = errors.New("denied")
	require.Error(t, st.Put(ctx, "x", nil))
}

func TestNewS3Store_AppliesConfig(t *testing.T) {
	origLoad := loadDefaultAWSConfig
	origNew := newS3ClientFromConfig
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNew
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			require.NoError(t, fn(&lo))
		}
		assert.Equal(t, "eu-west-1", lo.Region)
		require.NotNil(t, lo.Credentials)
		return aws.Config{
			Region:      lo.Region,
			Credentials: credentials.NewStaticCredentialsProvider("ak", "sk", ""),
		}, nil
	}

	var endpoint string
	var pathStyle bool
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		c := s3.NewFromConfig(cfg, optFns...)
		var o s3.Options
		for _, fn := range optFns {
			fn(&o)
		}
		endpoint = aws.ToString(o.BaseEndpoint)
		pathStyle = o.UsePathStyle
		return c
	}

	st, err := NewS3Store(context.Background(), S3Config{
		Endpoint: "http://127.0.0.1:9000", Region: "eu-west-1", Bucket: "myid",
		AccessKey: "ak", SecretKey: "sk",
	})
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9000", endpoint)
	assert.True(t, pathStyle)

	url, err := st.PresignGet(context.Background(), "profile.json", time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "http://127.0.0.1:9000/myid/exports/profile.json?"), url)
	assert.Contains(t, url, "X-Amz-Expires=60")
}

func TestNewS3Store_Errors(t *testing.T) {
	_, err := NewS3Store(context.Background(), S3Config{})
	require.ErrorIs(t, err, common.ErrorInvalidArgument)

	origLoad := loadDefaultAWSConfig
	t.Cleanup(func() { loadDefaultAWSConfig = origLoad })
	loadDefaultAWSConfig = func(context.Context, ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("no config")
	}
	_, err = NewS3Store(context.Background(), S3Config{Bucket: "b"})
	require.Error(t, err)
}
