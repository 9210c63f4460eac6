package processor

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"os"
	"path/filepath"

	geocube "github.com/airbusgeo/geocube-client-go/client"
	geocubepb "github.com/airbusgeo/geocube-client-go/pb"
	"github.com/scottyhq/dinoSARaws/graph"
	"github.com/scottyhq/dinoSARaws/service/log"
	"google.golang.org/grpc/codes"
)

// IndexFile is the html page of the interferogram
const IndexFile = "index.html"

const indexTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.IntName}}</title>
</head>
<body>
<h1>{{.IntName}}</h1>
<ul>
{{- range .Products}}
<li><a href="{{.Name}}">{{.Name}}</a>
{{- if .Ramp}}
<br><a href="{{base .}}-tiles/leaflet.html"><img src="{{base .}}-thumb-small.png" alt="{{base .}}"></a>
<a href="{{base .}}-thumb-large.png">large</a>
{{- end}}
</li>
{{- end}}
</ul>
</body>
</html>
`

var indexTmpl = template.Must(template.New("index").
	Funcs(template.FuncMap{"base": func(p graph.Product) string { return p.Base() }}).
	Parse(indexTemplate))

// WriteIndex writes index.html in dir, linking the products, their thumbnails and their web tiles
func WriteIndex(dir, intname string, products []graph.Product) (string, error) {
	var buf bytes.Buffer
	if err := indexTmpl.Execute(&buf, struct {
		IntName  string
		Products []graph.Product
	}{intname, products}); err != nil {
		return "", fmt.Errorf("WriteIndex: %w", err)
	}
	file := filepath.Join(dir, IndexFile)
	if err := os.WriteFile(file, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("WriteIndex: %w", err)
	}
	return file, nil
}

// Indexer indexes a published product
type Indexer interface {
	Index(ctx context.Context, uri string, p graph.Product) error
}

// DataFormat of an indexed product
type DataFormat struct {
	DType          geocubepb.DataFormat_Dtype
	NoData         float64
	Min, Max       float64
	ExtMin, ExtMax float64
}

// ISCEDataFormats returns the format of the ISCE products (float32, nodata=0)
func ISCEDataFormats() map[string]DataFormat {
	f := func(min, max float64) DataFormat {
		return DataFormat{DType: geocubepb.DataFormat_Float32, NoData: 0, Min: min, Max: max, ExtMin: min, ExtMax: max}
	}
	return map[string]DataFormat{
		"amplitude-cog.tif":       f(0, 1e5),
		"unwrapped-phase-cog.tif": f(-50, 50),
		"coherence-cog.tif":       f(0, 1),
		"incidence-cog.tif":       f(0, 90),
		"heading-cog.tif":         f(-180, 180),
		"elevation-cog.tif":       f(-500, 9000),
	}
}

// GeocubeIndexer indexes the products as datasets of a record of the Geocube
type GeocubeIndexer struct {
	Client   *geocube.Client
	RecordID string
	// InstancesID maps a product to the id of a variable instance
	InstancesID map[string]string
	Formats     map[string]DataFormat
}

// Index implements Indexer. A dataset that already exists is not an error
func (g GeocubeIndexer) Index(ctx context.Context, uri string, p graph.Product) error {
	instanceID, ok := g.InstancesID[p.Name]
	if !ok {
		log.Logger(ctx).Sugar().Debugf("%s: no variable instance, not indexed", p.Name)
		return nil
	}
	format, ok := g.Formats[p.Name]
	if !ok {
		return fmt.Errorf("Index: unknown data format of %s", p.Name)
	}
	dformat := geocube.DataFormat{
		Dtype:    format.DType,
		NoData:   format.NoData,
		MinValue: format.Min,
		MaxValue: format.Max,
	}
	if err := g.Client.IndexDataset(ctx, uri, true, "", g.RecordID, instanceID, []int64{1}, &dformat, format.ExtMin, format.ExtMax, 1); err != nil {
		if geocube.Code(err) == codes.AlreadyExists {
			log.Logger(ctx).Sugar().Warnf("%s already indexed: %v", uri, err)
			return nil
		}
		return fmt.Errorf("Index[%s]: %w", uri, err)
	}
	return nil
}
