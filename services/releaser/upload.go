package releaser

import (
	"context"
	"errors"
	"fmt"

	"relmake/pkg/proc"
)

// Uploader copies one local file to the object store.
type Uploader interface {
	Upload(ctx context.Context, local string, dst Destination) error
}

// UploadError reports a failed upload; Err carries the uploader's diagnostics.
type UploadError struct {
	Local  string
	Remote string
	Err    error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s to %s: %v", e.Local, e.Remote, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// CLIUploader shells out to `aws s3 cp`. Any stderr output fails the upload.
type CLIUploader struct {
	Runner proc.Runner
	// Command defaults to "aws".
	Command string
}

// Upload implements Uploader.
func (u *CLIUploader) Upload(ctx context.Context, local string, dst Destination) error {
	if u == nil || u.Runner == nil {
		return errors.New("cli uploader requires a runner")
	}
	name := u.Command
	if name == "" {
		name = "aws"
	}

	res, err := u.Runner.Run(ctx, proc.Cmd{
		Name: name,
		Args: []string{"s3", "cp", "--only-show-errors", local, dst.URL()},
	})
	if err == nil {
		err = res.Err()
	}
	if err != nil {
		return &UploadError{Local: local, Remote: dst.URL(), Err: err}
	}
	return nil
}

// ObjectPutter is the subset of the S3 client the SDK uploader needs.
type ObjectPutter interface {
	PutFile(ctx context.Context, bucket, key, path string) error
}

// SDKUploader uploads through the AWS SDK with a SHA-256 checksum on every object.
type SDKUploader struct {
	Client ObjectPutter
}

// Upload implements Uploader.
func (u *SDKUploader) Upload(ctx context.Context, local string, dst Destination) error {
	if u == nil || u.Client == nil {
		return errors.New("sdk uploader requires a client")
	}
	if err := u.Client.PutFile(ctx, dst.Bucket, dst.Key, local); err != nil {
		return &UploadError{Local: local, Remote: dst.URL(), Err: err}
	}
	return nil
}
