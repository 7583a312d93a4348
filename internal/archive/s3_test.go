// ABOUTME: Tests for the archive uploader
// ABOUTME: Uses a fake transfer manager to check keys and content types
package archive

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakeUploader struct {
	err    error
	inputs []*s3.PutObjectInput
	bodies []string
}

func (f *fakeUploader) Upload(ctx context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, string(body))
	return &manager.UploadOutput{}, nil
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"bucket only", Config{Bucket: "b"}, false},
		{"static keys", Config{Bucket: "b", AccessKeyID: "id", SecretAccessKey: "secret"}, false},
		{"no bucket", Config{}, true},
		{"key without secret", Config{Bucket: "b", AccessKeyID: "id"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestUpload(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name     string
		prefix   string
		file     string
		wantKey  string
		wantType string
	}{
		{"wav with prefix", "/captures/", "capture-1.wav", "captures/capture-1.wav", "audio/wav"},
		{"ogg no prefix", "", "capture-1.ogg", "capture-1.ogg", "audio/ogg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local := filepath.Join(dir, tt.file)
			if err := os.WriteFile(local, []byte("payload"), 0o644); err != nil {
				t.Fatal(err)
			}

			fake := &fakeUploader{}
			u := newWithClient(fake, Config{Bucket: "recordings", Prefix: tt.prefix}, nil)

			url, err := u.Upload(context.Background(), local)
			if err != nil {
				t.Fatalf("Upload() error = %v", err)
			}
			if want := "s3://recordings/" + tt.wantKey; url != want {
				t.Errorf("url = %q, want %q", url, want)
			}
			in := fake.inputs[0]
			if aws.ToString(in.Bucket) != "recordings" || aws.ToString(in.Key) != tt.wantKey {
				t.Errorf("bucket/key = %s/%s", aws.ToString(in.Bucket), aws.ToString(in.Key))
			}
			if aws.ToString(in.ContentType) != tt.wantType {
				t.Errorf("content type = %q, want %q", aws.ToString(in.ContentType), tt.wantType)
			}
			if fake.bodies[0] != "payload" {
				t.Errorf("body = %q", fake.bodies[0])
			}
		})
	}
}

func TestUploadErrors(t *testing.T) {
	u := newWithClient(&fakeUploader{}, Config{Bucket: "b"}, nil)
	if _, err := u.Upload(context.Background(), filepath.Join(t.TempDir(), "missing.wav")); err == nil {
		t.Error("expected error for missing file")
	}

	local := filepath.Join(t.TempDir(), "x.wav")
	os.WriteFile(local, nil, 0o644)
	u = newWithClient(&fakeUploader{err: errors.New("access denied")}, Config{Bucket: "b"}, nil)
	_, err := u.Upload(context.Background(), local)
	if err == nil || !strings.Contains(err.Error(), "access denied") {
		t.Errorf("Upload() error = %v, want access denied", err)
	}
}
