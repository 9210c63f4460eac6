package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/airbusgeo/geocube/interface/storage/uri"
	"github.com/airbusgeo/osio"
	osioGcs "github.com/airbusgeo/osio/gcs"
	osioS3 "github.com/airbusgeo/osio/s3"
)

// File is a read-only file, local or remote
type File interface {
	io.Reader
	io.ReaderAt
	Size() int64
}

type localFile struct {
	*os.File
	size int64
}

func (f localFile) Size() int64 {
	return f.size
}

// OpenFile opens a local file, or a remote file (gs://, s3://, http(s)://) through a block-cached reader.
// The returned function must be called to release the file.
func OpenFile(ctx context.Context, file string) (File, func(), error) {
	if !strings.Contains(file, "://") || strings.HasPrefix(file, "file://") {
		file = strings.TrimPrefix(file, "file://")
		f, err := os.Open(file)
		if err != nil {
			return nil, nil, fmt.Errorf("OpenFile: %w", err)
		}
		stat, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("OpenFile.Stat: %w", err)
		}
		return localFile{File: f, size: stat.Size()}, func() { f.Close() }, nil
	}

	fileURI, err := uri.ParseUri(file)
	if err != nil {
		return nil, nil, fmt.Errorf("OpenFile.ParseURI: %w", err)
	}

	var handler osio.KeyStreamerAt
	key := path.Join(fileURI.Bucket(), fileURI.Path())
	switch protocol := strings.ToLower(fileURI.Protocol()); protocol {
	case "gs":
		if handler, err = osioGcs.Handle(ctx); err != nil {
			return nil, nil, fmt.Errorf("OpenFile.GSHandle: %w", err)
		}
	case "s3":
		if handler, err = osioS3.Handle(ctx); err != nil {
			return nil, nil, fmt.Errorf("OpenFile.S3Handle: %w", err)
		}
	case "http", "https":
		if handler, err = osio.HTTPHandle(ctx); err != nil {
			return nil, nil, fmt.Errorf("OpenFile.HTTPHandle: %w", err)
		}
		key = file
	default:
		return nil, nil, fmt.Errorf("OpenFile: unsupported protocol %s", protocol)
	}

	adapter, err := osio.NewAdapter(handler)
	if err != nil {
		return nil, nil, fmt.Errorf("OpenFile.NewAdapter: %w", err)
	}
	reader, err := adapter.Reader(key)
	if err != nil {
		if isErrNotFound(err) {
			return nil, nil, ErrFileNotFound{file}
		}
		return nil, nil, fmt.Errorf("OpenFile.Reader: %w", err)
	}
	return reader, func() {}, nil
}

// ReadFile reads the whole content of a local or remote file
func ReadFile(ctx context.Context, file string) ([]byte, error) {
	f, release, err := OpenFile(ctx, file)
	if err != nil {
		return nil, err
	}
	defer release()
	b := make([]byte, f.Size())
	if _, err := f.ReadAt(b, 0); err != nil && err != io.EOF {
		return nil, fmt.Errorf("ReadFile[%s]: %w", file, err)
	}
	return b, nil
}
