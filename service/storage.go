package service

import (
	"compress/flate"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	gstorage "cloud.google.com/go/storage"
	"github.com/airbusgeo/geocube/interface/storage"
	"github.com/airbusgeo/geocube/interface/storage/uri"
	"github.com/mholt/archiver"
)

// Extension of a file
type Extension string

// Some supported extensions
const (
	NoExtension    Extension = ""
	ExtensionGTiff Extension = "tif"
	ExtensionVRT   Extension = "vrt"
	ExtensionPNG   Extension = "png"
	ExtensionCPT   Extension = "cpt"
	ExtensionXML   Extension = "xml"
	ExtensionLog   Extension = "log"
	ExtensionHTML  Extension = "html"
	ExtensionZIP   Extension = "zip"
	// Directories are stored as a zip file
	ExtensionSAFE Extension = "SAFE" // Sentinel product
)

// ErrFileNotFound is an error returned by ImportFile or DeleteFile
type ErrFileNotFound struct {
	File string
}

func (e ErrFileNotFound) Error() string {
	return fmt.Sprintf("File not found: %s", e.File)
}

func isErrNotFound(err error) bool {
	return errors.Is(err, gstorage.ErrObjectNotExist) || errors.Is(err, storage.ErrFileNotFound) ||
		errors.Is(err, os.ErrNotExist)
}

// Storage is a service to store and retrieve the files of an interferogram
type Storage interface {
	// SaveFile persists the local file into a storage and returns the uri
	// Directories are stored as zip files
	SaveFile(ctx context.Context, intname, localPath string) (string, error)
	// ImportFile imports the file from the storage to the given localdir
	// Zipped directories are extracted into localdir/name
	// Raise ErrFileNotFound
	ImportFile(ctx context.Context, intname, name, localdir string) error
	// DeleteFile delete the file from the storage
	// Raise ErrFileNotFound
	DeleteFile(ctx context.Context, intname, name string) error
}

// StorageStrategy implements Storage using geocube.Strategy
type StorageStrategy struct {
	storage storage.Strategy
	uri     uri.DefaultUri
}

// NewStorageStrategy creates a new StorageStrategy (local or gs://)
func NewStorageStrategy(ctx context.Context, storageURI string) (*StorageStrategy, error) {
	uri, err := uri.ParseUri(storageURI)
	if err != nil {
		return nil, fmt.Errorf("NewStorageStrategy.ParseURI: %w", err)
	}

	storageClient, err := uri.NewStorageStrategy(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewStorageStrategy: %w", err)
	}

	return &StorageStrategy{storage: storageClient, uri: uri}, nil
}

// SaveFile implements Storage
func (ss *StorageStrategy) SaveFile(ctx context.Context, intname, localPath string) (string, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return "", fmt.Errorf("SaveFile.Stat: %w", err)
	}
	src := localPath
	if info.IsDir() {
		dst := strings.TrimSuffix(localPath, "/") + "." + string(ExtensionZIP)
		zipper := archiver.NewZip()
		zipper.CompressionLevel = flate.BestSpeed
		zipper.OverwriteExisting = true
		if err := zipper.Archive([]string{localPath}, dst); err != nil {
			return "", fmt.Errorf("SaveFile.Archive: %w", err)
		}
		defer os.Remove(dst)
		src = dst
	}

	f, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("SaveFile.Open: %w", err)
	}
	defer f.Close()

	dst := ss.getPath(intname, filepath.Base(src))
	if err := ss.storage.UploadFile(ctx, dst, f); err != nil {
		return "", fmt.Errorf("SaveFile.UploadFile to %s: %w", dst, err)
	}
	return dst, nil
}

// ImportFile implements Storage
func (ss *StorageStrategy) ImportFile(ctx context.Context, intname, name, localdir string) error {
	srcFile := ss.getPath(intname, name)
	dstFile := path.Join(localdir, name)
	err := ss.storage.DownloadToFile(ctx, srcFile, dstFile)
	if err == nil {
		return nil
	}
	if !isErrNotFound(err) {
		return fmt.Errorf("ImportFile.DownloadToFile from %s: %w", srcFile, err)
	}

	// Try the zipped directory
	zipName := name + "." + string(ExtensionZIP)
	zipFile := path.Join(localdir, zipName)
	if err := ss.storage.DownloadToFile(ctx, ss.getPath(intname, zipName), zipFile); err != nil {
		if isErrNotFound(err) {
			return ErrFileNotFound{srcFile}
		}
		return fmt.Errorf("ImportFile.DownloadToFile from %s: %w", srcFile, err)
	}
	defer os.Remove(zipFile)

	tmpDir, err := os.MkdirTemp(localdir, "unzip")
	if err != nil {
		return fmt.Errorf("ImportFile.MkdirTemp: %w", err)
	}
	defer os.RemoveAll(tmpDir)
	zip := archiver.Zip{OverwriteExisting: true, MkdirAll: true}
	if err := zip.Unarchive(zipFile, tmpDir); err != nil {
		return fmt.Errorf("ImportFile.Unarchive: %w", err)
	}

	// The archive contains the directory itself
	if _, err = os.Stat(path.Join(tmpDir, name)); err == nil {
		tmpDir = path.Join(tmpDir, name)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("ImportFile.Stat: %w", err)
	}
	if err := os.Rename(tmpDir, dstFile); err != nil {
		return fmt.Errorf("ImportFile.Rename: %w", err)
	}
	return nil
}

// DeleteFile implements Storage
func (ss *StorageStrategy) DeleteFile(ctx context.Context, intname, name string) error {
	file := ss.getPath(intname, name)
	err := ss.storage.Delete(ctx, file)
	if err != nil && isErrNotFound(err) {
		file = ss.getPath(intname, name+"."+string(ExtensionZIP))
		err = ss.storage.Delete(ctx, file)
	}
	if err != nil {
		if isErrNotFound(err) {
			return ErrFileNotFound{ss.getPath(intname, name)}
		}
		return fmt.Errorf("DeleteFile.Delete: %w", err)
	}
	return nil
}

// getPath returns the uri of the file of the interferogram
func (ss *StorageStrategy) getPath(intname, filename string) string {
	uri := ss.uri.String()
	if !strings.HasSuffix(uri, "/") {
		uri += "/"
	}
	return uri + path.Join(intname, filename)
}

// WithExt replaces the extension of the file
func WithExt(filePath string, ext Extension) string {
	filePath = strings.TrimSuffix(filePath, filepath.Ext(filePath))
	if ext != "" {
		return fmt.Sprintf("%s.%s", filePath, string(ext))
	}
	return filePath
}

// GetExt returns the extension of the file
func GetExt(filePath string) Extension {
	ext := path.Ext(filePath)
	if ext == "" {
		return NoExtension
	}
	return Extension(ext[1:])
}
