package provider

import (
	"context"
	"fmt"

	"github.com/airbusgeo/geocube/interface/storage/uri"
	"github.com/scottyhq/dinoSARaws/common"
)

// BucketProvider implements SLCProvider for a mirror of products in a bucket (gs:// or local path)
type BucketProvider struct {
	pattern string
}

// NewBucketProvider creates a new SLCProvider from a bucket
// pattern can contain several {IDENTIFIER} than will be replaced according to the information found in the scene name
// (see common.Info). Example: gs://my-mirror/S1{MISSION_VERSION}/{YEAR}/{SCENE}.zip
func NewBucketProvider(pattern string) *BucketProvider {
	return &BucketProvider{pattern: pattern}
}

// Name implements SLCProvider
func (ip *BucketProvider) Name() string {
	return "Bucket (" + ip.pattern + ")"
}

// Download implements SLCProvider
func (ip *BucketProvider) Download(ctx context.Context, sceneName, localDir string) (string, error) {
	format, err := common.Info(sceneName)
	if err != nil {
		return "", fmt.Errorf("BucketProvider: %w", err)
	}
	src, err := uri.ParseUri(common.FormatBrackets(ip.pattern, format))
	if err != nil {
		return "", fmt.Errorf("BucketProvider.ParseUri: %w", err)
	}
	exists, err := src.Exist(ctx)
	if err != nil {
		return "", fmt.Errorf("BucketProvider.Exist: %w", err)
	}
	if !exists {
		return "", ErrProductNotFound{src.String()}
	}
	localZip := sceneFilePath(localDir, sceneName)
	if err := src.DownloadToFile(ctx, localZip); err != nil {
		return "", fmt.Errorf("BucketProvider.DownloadToFile[%s]: %w", src.String(), err)
	}
	return localZip, nil
}
