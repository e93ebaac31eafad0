package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"briefsmith/internal/services"
)

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	failPut error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: map[string][]byte{}}
}

func (f *fakeObjects) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.failPut != nil {
		return nil, f.failPut
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Bucket+"/"+*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjects) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeObjects) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, *in.Bucket+"/"+*in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3PrefixesKeys(t *testing.T) {
	fake := newFakeObjects()
	store := newS3WithClient(fake, "bucket", "/artifacts/")
	ctx := context.Background()

	if err := store.Put(ctx, "s1/brief/a.md", []byte("body")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, ok := fake.objects["bucket/artifacts/s1/brief/a.md"]; !ok {
		t.Fatalf("expected prefixed object key, got %v", fake.objects)
	}
	data, err := store.Get(ctx, "s1/brief/a.md")
	if err != nil || string(data) != "body" {
		t.Fatalf("Get = %q, %v", data, err)
	}
	if err := store.Delete(ctx, "s1/brief/a.md"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, "s1/brief/a.md"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestS3PutFailureIsTransient(t *testing.T) {
	fake := newFakeObjects()
	fake.failPut = errors.New("connection reset")
	store := newS3WithClient(fake, "bucket", "")
	err := store.Put(context.Background(), "k", []byte("x"))
	if !services.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}
