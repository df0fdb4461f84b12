package archive

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/algoviz-dev/algoviz/pkg/state"
)

type fakeS3 struct {
	inputs []*s3.PutObjectInput
	err    error
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, params)
	return &s3.PutObjectOutput{}, nil
}

func TestS3StoreSaveReplay(t *testing.T) {
	client := &fakeS3{}
	store := NewS3Store(client, "replay-bucket", "replays/")

	require.NoError(t, store.SaveReplay(context.Background(), "ABCD1234", sampleReplay()))
	require.Len(t, client.inputs, 1)

	input := client.inputs[0]
	assert.Equal(t, "replay-bucket", *input.Bucket)
	assert.True(t, strings.HasPrefix(*input.Key, "replays/ABCD1234-"))
	assert.True(t, strings.HasSuffix(*input.Key, ".json"))
	assert.Equal(t, "application/json", *input.ContentType)

	body, err := io.ReadAll(input.Body)
	require.NoError(t, err)
	assert.Equal(t, *input.ContentLength, int64(len(body)))

	var replay []state.SessionState
	require.NoError(t, sonic.Unmarshal(body, &replay))
	require.Len(t, replay, 2)
}

func TestS3StoreEmptyPrefix(t *testing.T) {
	client := &fakeS3{}
	store := NewS3Store(client, "replay-bucket", "")

	require.NoError(t, store.SaveReplay(context.Background(), "ABCD1234", sampleReplay()))
	require.Len(t, client.inputs, 1)
	assert.True(t, strings.HasPrefix(*client.inputs[0].Key, "ABCD1234-"))
}

func TestS3StoreRejectsEmptyReplay(t *testing.T) {
	store := NewS3Store(&fakeS3{}, "replay-bucket", "")
	err := store.SaveReplay(context.Background(), "ABCD1234", nil)
	assert.ErrorIs(t, err, ErrEmptyReplay)
}

func TestS3StorePropagatesPutError(t *testing.T) {
	client := &fakeS3{err: errors.New("access denied")}
	store := NewS3Store(client, "replay-bucket", "")

	err := store.SaveReplay(context.Background(), "ABCD1234", sampleReplay())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}
