package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
)

// HTTPGetWithAuth gets the url using either basic authentication (authName, authPswd) or a bearer token
func HTTPGetWithAuth(ctx context.Context, url, authName, authPswd, authToken string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPGet: %w", err)
	}
	resp, err := doWithAuth(req, authName, authPswd, authToken)
	if err != nil {
		return nil, fmt.Errorf("HTTPGet: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, MakeTemporary(fmt.Errorf("HTTPGet.ReadAll: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("HTTPGet[%s]: %s", url, resp.Status)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, MakeTemporary(err)
		}
		return nil, err
	}
	return body, nil
}

// HTTPPostFormWithAuth posts an url-encoded form and returns the body of the response
func HTTPPostFormWithAuth(ctx context.Context, url string, form neturl.Values, authName, authPswd, authToken string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", url, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("HTTPPost: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := doWithAuth(req, authName, authPswd, authToken)
	if err != nil {
		return nil, MakeTemporary(fmt.Errorf("HTTPPost: %w", err))
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, MakeTemporary(fmt.Errorf("HTTPPost.ReadAll: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("HTTPPost[%s]: %s: %s", url, resp.Status, strings.TrimSpace(string(body)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, MakeTemporary(err)
		}
		return nil, err
	}
	return body, nil
}

func doWithAuth(req *http.Request, authName, authPswd, authToken string) (*http.Response, error) {
	if authName != "" {
		req.SetBasicAuth(authName, authPswd)
	}
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	return http.DefaultClient.Do(req)
}
