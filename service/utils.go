package service

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"time"

	geocube "github.com/airbusgeo/geocube-client-go/client"
	"github.com/scottyhq/dinoSARaws/service/log"
	"google.golang.org/grpc/credentials"
)

// NewGeocubeClient connects to the Geocube and returns a client
func NewGeocubeClient(ctx context.Context, geocubeServer, apikey string, tlsConfig *tls.Config) (*geocube.Client, error) {
	if geocubeServer == "" {
		return nil, fmt.Errorf("GeocubeServer undefined")
	}

	var creds credentials.TransportCredentials
	if tlsConfig != nil {
		creds = credentials.NewTLS(tlsConfig)
	}
	connector := geocube.ClientConnector{Connector: geocube.Connector{Server: geocubeServer, Creds: creds, ApiKey: apikey}}
	gcclient, err := connector.Dial()
	if err != nil {
		return nil, fmt.Errorf("NewGeocubeClient.Dial: %w", err)
	}
	version, err := gcclient.ServerVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGeocubeClient.Version: %w", err)
	} else {
		log.Logger(ctx).Debug("Connected to Geocube Server " + version)
	}

	return &gcclient, nil
}

// StringSet is a set of strings (all elements are unique)
type StringSet map[string]struct{}

// Push adds the string to the set if not already exists
func (ss StringSet) Push(s string) {
	ss[s] = struct{}{}
}

// Pop removes the string from the set
func (ss StringSet) Pop(s string) {
	delete(ss, s)
}

// Slice returns a slice from the set
func (ss StringSet) Slice() []string {
	sl := make([]string, 0, len(ss))
	for k := range ss {
		sl = append(sl, k)
	}
	return sl
}

// Exists returns true if the string already exists in the Set
func (ss StringSet) Exists(s string) bool {
	_, ok := ss[s]
	return ok
}

// GetBodyRetry: simple GET with N retries in case of temporary errors
func GetBodyRetry(ctx context.Context, url string, nbRetries int) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("NewRequest: %w", err)
	}
	return GetBodyRetryReq(req, nbRetries)
}

// GetBodyRetryReq: GET the request with N retries in case of temporary errors
// 4xx responses are not retried
func GetBodyRetryReq(req *http.Request, nbRetries int) ([]byte, error) {
	var body []byte
	err := Retriable(req.Context(), func() error {
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			var e *neturl.Error
			if errors.As(err, &e) && (e.Timeout() || Temporary(e)) {
				return MakeTemporary(err)
			}
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			err = fmt.Errorf("%s: %s", resp.Status, b)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return err
			}
			return MakeTemporary(err)
		}
		if body, err = io.ReadAll(resp.Body); err != nil {
			return MakeTemporary(err)
		}
		return nil
	}, time.Second, nbRetries+1, Temporary)
	return body, err
}

// Retriable calls f up to maxTries times, with an exponential backoff starting at backoff.
// If retryIf is set, only the errors for which it returns true are retried.
// Returns the last error
func Retriable(ctx context.Context, f func() error, backoff time.Duration, maxTries int, retryIf ...func(error) bool) error {
	var err error
	for i := 0; i < maxTries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		if err = f(); err == nil {
			return nil
		}
		for _, retry := range retryIf {
			if !retry(err) {
				return err
			}
		}
		log.Logger(ctx).Sugar().Debugf("try %d/%d failed: %v", i+1, maxTries, err)
	}
	return err
}
