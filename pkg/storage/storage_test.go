package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

type apiError struct {
	code string
}

func (e *apiError) Error() string                 { return e.code }
func (e *apiError) ErrorCode() string             { return e.code }
func (e *apiError) ErrorMessage() string          { return e.code }
func (e *apiError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

// fakeS3 is an in-memory bucket.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, &apiError{code: "NoSuchKey"}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Key] = data
	if in.ContentType != nil {
		f.types[*in.Key] = *in.ContentType
	}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func readAll(t *testing.T, s Store, name string) string {
	t.Helper()
	rc, err := s.Open(context.Background(), name)
	if err != nil {
		t.Fatalf("Open(%q): %v", name, err)
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read %q: %v", name, err)
	}
	return string(b)
}

func stores(t *testing.T) map[string]Store {
	t.Helper()
	local, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	return map[string]Store{
		"local": local,
		"s3":    NewS3(newFakeS3(), "bucket", "blobs"),
	}
}

func TestPutOpenDelete(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			err := s.Put(ctx, Object{Name: "audio/a1", ContentType: "audio/mpeg", Body: strings.NewReader("mp3 bytes")})
			if err != nil {
				t.Fatalf("Put: %v", err)
			}
			if got := readAll(t, s, "audio/a1"); got != "mp3 bytes" {
				t.Errorf("content = %q", got)
			}

			if err := s.Put(ctx, Object{Name: "audio/a1", Body: strings.NewReader("v2")}); err != nil {
				t.Fatalf("overwrite: %v", err)
			}
			if got := readAll(t, s, "audio/a1"); got != "v2" {
				t.Errorf("after overwrite = %q", got)
			}

			if err := s.Delete(ctx, "audio/a1"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := s.Open(ctx, "audio/a1"); !errors.Is(err, fs.ErrNotExist) {
				t.Errorf("Open after delete: err = %v, want fs.ErrNotExist", err)
			}
			if err := s.Delete(ctx, "audio/a1"); err != nil {
				t.Errorf("second Delete: %v", err)
			}
		})
	}
}

func TestLocalRejectsEscapingNames(t *testing.T) {
	s, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"", ".", "..", "../x", "a/../../x"} {
		if err := s.Put(context.Background(), Object{Name: name, Body: strings.NewReader("x")}); err == nil {
			t.Errorf("Put(%q) succeeded, want error", name)
		}
	}
}

func TestS3KeyPrefixAndContentType(t *testing.T) {
	fake := newFakeS3()
	s := NewS3(fake, "bucket", "robo")
	err := s.Put(context.Background(), Object{Name: "img/1", ContentType: "image/png", Body: strings.NewReader("png")})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, ok := fake.objects["robo/img/1"]; !ok {
		t.Fatalf("objects = %v, want key robo/img/1", fake.objects)
	}
	if ct := fake.types["robo/img/1"]; ct != "image/png" {
		t.Errorf("content type = %q", ct)
	}
}

func TestS3PutError(t *testing.T) {
	fake := newFakeS3()
	fake.putErr = errors.New("boom")
	s := NewS3(fake, "bucket", "")
	err := s.Put(context.Background(), Object{Name: "x", Body: strings.NewReader("x")})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("err = %v", err)
	}
}

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&apiError{code: "NoSuchKey"}, true},
		{&apiError{code: "NotFound"}, true},
		{&apiError{code: "AccessDenied"}, false},
		{errors.New("plain"), false},
	}
	for _, tt := range tests {
		if got := isNotFound(tt.err); got != tt.want {
			t.Errorf("isNotFound(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestDialS3RequiresBucket(t *testing.T) {
	if _, err := DialS3(S3Config{}); err == nil {
		t.Fatal("expected error for empty bucket")
	}
	if _, err := DialS3(S3Config{Bucket: "b", Endpoint: "http://localhost:9000", PathStyle: true, AccessKey: "k", SecretKey: "s"}); err != nil {
		t.Fatalf("DialS3: %v", err)
	}
}
