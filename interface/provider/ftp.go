package provider

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/scottyhq/dinoSARaws/common"
	"github.com/scottyhq/dinoSARaws/service"
)

// FTPProvider implements SLCProvider for a FTP mirror
type FTPProvider struct {
	host        string
	pathPattern string
	user        string
	pword       string
	tls         bool
}

// Name implements SLCProvider
func (ip *FTPProvider) Name() string {
	return "FTP"
}

// NewFTPProvider creates a new SLCProvider for a ftp mirror
// Example:
// pathPattern: full ftp path, including host, port and folder tree. i.e: ftp://ftp.example.org:21/S1{MISSION_VERSION}/{YEAR}/{MONTH}/{SCENE}.zip  (See common.FormatBrackets)
// Port 990 implies implicit TLS.
func NewFTPProvider(pathPattern, user, pword string) *FTPProvider {
	pathPattern = strings.TrimPrefix(pathPattern, "ftp://")
	splits := strings.SplitN(pathPattern, "/", 2)
	if len(splits) == 1 {
		splits = append(splits, "{SCENE}.zip")
	}
	splitHost := strings.SplitN(splits[0], ":", 2)
	if len(splitHost) == 1 {
		splits[0] += ":21"
	}

	return &FTPProvider{
		host:        splits[0],
		tls:         len(splitHost) == 2 && splitHost[1] == "990",
		pathPattern: splits[1],
		user:        user,
		pword:       pword,
	}
}

// WriteCounter counts the number of bytes written to it. It implements to the io.Writer interface
// and we can pass this into io.TeeReader() which will report progress on each write cycle.
type WriteCounter struct {
	Progress *Progress
}

func (wc *WriteCounter) Write(p []byte) (int, error) {
	n := len(p)
	wc.Progress.UpdateDelta(int64(n))
	return n, nil
}

// Download implements SLCProvider
func (ip *FTPProvider) Download(ctx context.Context, sceneName, localDir string) (string, error) {
	format, err := common.Info(sceneName)
	if err != nil {
		return "", fmt.Errorf("FTPProvider: %w", err)
	}

	path := common.FormatBrackets(ip.pathPattern, format)

	// Connection to FTP
	ftpOption := []ftp.DialOption{ftp.DialWithTimeout(5 * time.Second), ftp.DialWithContext(ctx)}
	if ip.tls {
		ftpOption = append(ftpOption, ftp.DialWithTLS(&tls.Config{InsecureSkipVerify: true}))
	}
	c, err := ftp.Dial(ip.host, ftpOption...)
	if err != nil {
		return "", service.MakeTemporary(fmt.Errorf("FTPProvider.Dial: %w", err))
	}

	if err = c.Login(ip.user, ip.pword); err != nil {
		return "", fmt.Errorf("FTPProvider.Login: %w", err)
	}
	defer c.Quit()

	// Get file size
	s, err := c.FileSize(path)
	if err != nil {
		return "", fmt.Errorf("FTPProvider.FileSize: %w: %v", ErrProductNotFound{path}, err)
	}

	// Get file stream
	r, err := c.Retr(path)
	if err != nil {
		return "", fmt.Errorf("FTPProvider.Retr: %w", err)
	}
	defer r.Close()

	// Download to local file
	localZip := sceneFilePath(localDir, sceneName)
	destFile, err := os.Create(localZip)
	if err != nil {
		return "", fmt.Errorf("FTPProvider.Create: %w", err)
	}
	defer destFile.Close()

	if _, err = io.Copy(destFile, io.TeeReader(r, &WriteCounter{Progress: NewProgress(ctx, ip.Name()+":"+sceneName, s, 5)})); err != nil {
		os.Remove(localZip)
		return "", service.MakeTemporary(fmt.Errorf("FTPProvider.Copy: %w", err))
	}
	return localZip, nil
}
