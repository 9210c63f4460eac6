package provider

import (
	"context"
	"fmt"
	"net/http"

	"github.com/scottyhq/dinoSARaws/common"
	"golang.org/x/oauth2"
)

const (
	ASFDownloadProductSLC = "https://datapool.asf.alaska.edu/SLC/S{MISSION_VERSION}/{SCENE}.zip"
)

// ASFProvider implements SLCProvider for Alaska Satellite Facility
// Requests are authenticated with an Earthdata bearer token
type ASFProvider struct {
	urlPattern string
	client     *http.Client
}

// Name implements SLCProvider
func (ip *ASFProvider) Name() string {
	return "ASF"
}

// NewASFProvider creates a new SLCProvider from ASF, authenticated with the Earthdata token
func NewASFProvider(ctx context.Context, token string) *ASFProvider {
	return NewASFProviderFromTokenSource(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))
}

// NewASFProviderFromTokenSource creates a new SLCProvider from ASF, authenticated with the tokens of the source
func NewASFProviderFromTokenSource(ctx context.Context, ts oauth2.TokenSource) *ASFProvider {
	client := oauth2.NewClient(ctx, ts)
	client.CheckRedirect = checkRedirect
	return &ASFProvider{urlPattern: ASFDownloadProductSLC, client: client}
}

// WithURLPattern changes the url of the products (default: ASFDownloadProductSLC)
func (ip *ASFProvider) WithURLPattern(pattern string) *ASFProvider {
	ip.urlPattern = pattern
	return ip
}

// Download implements SLCProvider
func (ip *ASFProvider) Download(ctx context.Context, sceneName, localDir string) (string, error) {
	if common.GetFileKind(sceneName) != common.FileKindSLC {
		return "", fmt.Errorf("ASFProvider: not a Sentinel-1 SLC: %s", sceneName)
	}
	info, err := common.Info(sceneName)
	if err != nil {
		return "", fmt.Errorf("ASFProvider.%w", err)
	}
	url := common.FormatBrackets(ip.urlPattern, info)

	localZip, err := downloadFile(ctx, ip.client, url, sceneFilePath(localDir, sceneName), ip.Name()+":"+sceneName)
	if err != nil {
		return "", fmt.Errorf("ASFProvider.%w", err)
	}
	return localZip, nil
}
