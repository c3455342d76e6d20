package s3

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	mu    sync.Mutex
	input *s3.PutObjectInput
	body  string
	err   error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.input = in
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = string(b)
	return &s3.PutObjectOutput{}, nil
}

func TestPutObjectBuildsRequest(t *testing.T) {
	t.Parallel()

	fake := &fakeS3{}
	store, err := New(fake, Config{Bucket: "databooth-beach-swim"})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "all_beach_daily_data.csv", "text/csv", strings.NewReader("a,b\n"))
	require.NoError(t, err)
	assert.Equal(t, "s3://databooth-beach-swim/all_beach_daily_data.csv", uri)
	assert.Equal(t, "databooth-beach-swim", aws.ToString(fake.input.Bucket))
	assert.Equal(t, "all_beach_daily_data.csv", aws.ToString(fake.input.Key))
	assert.Equal(t, "text/csv", aws.ToString(fake.input.ContentType))
	assert.EqualValues(t, 4, aws.ToInt64(fake.input.ContentLength))
	assert.Equal(t, "a,b\n", fake.body)
}

func TestPutObjectPrefixAndErrors(t *testing.T) {
	t.Parallel()

	fake := &fakeS3{err: errors.New("AccessDenied")}
	store, err := New(fake, Config{Bucket: "b", Prefix: "beachwatch/"})
	require.NoError(t, err)
	assert.Equal(t, "beachwatch/x.csv", store.objectKey("x.csv"))

	_, err = store.PutObject(context.Background(), "x.csv", "", strings.NewReader("x"))
	require.ErrorContains(t, err, "AccessDenied")
	require.ErrorContains(t, err, "s3://b/beachwatch/x.csv")

	_, err = store.PutObject(context.Background(), "", "", strings.NewReader("x"))
	require.Error(t, err)

	_, err = New(nil, Config{Bucket: "b"})
	require.Error(t, err)
	_, err = New(fake, Config{})
	require.Error(t, err)
}

func TestPutObjectAgainstCompatibleEndpoint(t *testing.T) {
	t.Parallel()

	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(context.Background(), Config{
		Region:          "fr-par",
		Endpoint:        srv.URL,
		AccessKeyID:     "SCWTESTKEY",
		SecretAccessKey: "secret",
		UsePathStyle:    true,
	})
	require.NoError(t, err)
	store, err := New(client, Config{Bucket: "databooth-beach-swim"})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "all_beach_daily_data.csv", "text/csv", strings.NewReader("Retrieved at,Region\n"))
	require.NoError(t, err)
	assert.Equal(t, "s3://databooth-beach-swim/all_beach_daily_data.csv", uri)
	assert.Equal(t, "/databooth-beach-swim/all_beach_daily_data.csv", gotPath)
	assert.Contains(t, gotBody, "Retrieved at,Region")
}
