package provider

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/scottyhq/dinoSARaws/common"
)

// LocalProvider implements SLCProvider for local storage
// Products are stored as <path>/YYYY/MM/DD/<scene>.zip
type LocalProvider struct {
	path string
}

// Name implements SLCProvider
func (ip *LocalProvider) Name() string {
	return "FileSystem (" + ip.path + ")"
}

// NewLocalProvider creates a new SLCProvider from local storage
func NewLocalProvider(path string) *LocalProvider {
	return &LocalProvider{path: path}
}

// Download implements SLCProvider
// The product is hard-linked (or copied if not possible) to localDir
func (ip *LocalProvider) Download(ctx context.Context, sceneName, localDir string) (string, error) {
	format, err := common.Info(sceneName)
	if err != nil {
		return "", fmt.Errorf("LocalProvider: %w", err)
	}

	srcZip := path.Join(ip.path, format["YEAR"], format["MONTH"], format["DAY"], sceneName+".zip")
	if _, err := os.Stat(srcZip); err != nil {
		if os.IsNotExist(err) {
			return "", ErrProductNotFound{srcZip}
		}
		return "", fmt.Errorf("LocalProvider: %w", err)
	}
	localZip := sceneFilePath(localDir, sceneName)
	if err := os.Link(srcZip, localZip); err == nil || os.IsExist(err) {
		return localZip, nil
	}
	if err := fileCopy(srcZip, localZip); err != nil {
		return "", fmt.Errorf("LocalProvider.%w", err)
	}
	return localZip, nil
}

// fileCopy copies a single file from src to dst
func fileCopy(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("fileCopy.Open: %w", err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("fileCopy.Create: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("fileCopy.Copy: %w", err)
	}
	return out.Close()
}
