package catalog_test

import (
	"os"
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var tempDirs []string

func tempDir() string {
	dir, err := os.MkdirTemp("", "catalog")
	Expect(err).NotTo(HaveOccurred())
	tempDirs = append(tempDirs, dir)
	return dir
}

func TestCatalog(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Catalog Suite")
}

var _ = AfterSuite(func() {
	for _, dir := range tempDirs {
		os.RemoveAll(dir)
	}
})
