package provider

import (
	"context"
)

// SLCProvider is the interface of a Sentinel-1 SLC download service
type SLCProvider interface {
	// Download the zipped product to the given localDir and returns the path of the zip file
	// sceneName is for example S1A_IW_SLC__1SDV_20190103T170131_20190103T170159_025316_02CD10_519D
	Download(ctx context.Context, sceneName, localDir string) (string, error)

	// Name of the provider
	Name() string
}
