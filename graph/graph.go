package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/airbusgeo/geocube/interface/storage/uri"
	"github.com/scottyhq/dinoSARaws/service"
	"github.com/scottyhq/dinoSARaws/service/log"
	"go.uber.org/zap/zapcore"
)

const (
	python  = "python"
	command = "cmd"
	docker  = "docker"
)

// Product fields available to the steps
const (
	productName       = "name"
	productSource     = "source"
	productBand       = "band"
	productRamp       = "ramp"
	productTmp        = "tmp"
	productRGB        = "rgb"
	productThumbLarge = "thumb_large"
	productThumbSmall = "thumb_small"
	productTiles      = "tiles"
)

// Names of the built-in graphs
const (
	GraphCOG     = "COG"
	GraphBrowse  = "Browse"
	GraphTopsApp = "TopsApp"
)

type Arg interface{}

type ArgFixed string   // fixed arg
type ArgConfig string  // arg from config
type ArgProduct string // arg from product (name, source, band, ramp or a derived file name)
type ArgOptions struct { // list of args from config (space separated), each one preceded by Flag if not empty
	Flag string
	Key  string
}

// ProcessingStep is an external command run for each product
type ProcessingStep struct {
	Engine    string // cmd, python or docker
	Command   string // executable, or image for the docker engine
	Args      []Arg
	Condition ProductCondition
}

// GraphConfig is a configuration map for a processing graph
type GraphConfig map[string]string

// ProcessingGraph is a set of steps applied to each product, and the intermediate files to delete afterwards
type ProcessingGraph struct {
	Name    string
	steps   []ProcessingStep
	cleanup []Arg
}

// Summary returns a human-readable description of the graph
func (g *ProcessingGraph) Summary() string {
	s := fmt.Sprintf("- %d steps\n", len(g.steps))
	for _, step := range g.steps {
		s += fmt.Sprintf("   * [%s] %s (%v)\n", step.Engine, step.Command, step.Condition.Name)
	}
	s += fmt.Sprintf("- %d intermediate files\n", len(g.cleanup))
	for _, f := range g.cleanup {
		s += fmt.Sprintf("   - %v\n", f)
	}
	return s
}

// requiredFields returns the fields of the product used by the graph
func (g *ProcessingGraph) requiredFields() map[string]bool {
	fields := map[string]bool{}
	for _, step := range g.steps {
		for _, arg := range step.Args {
			if a, ok := arg.(ArgProduct); ok {
				fields[string(a)] = true
			}
		}
	}
	return fields
}

func newProcessingGraph(name string, steps []ProcessingStep, cleanup []Arg) (*ProcessingGraph, error) {
	for i, step := range steps {
		switch step.Engine {
		case command, python, docker:
		default:
			return nil, fmt.Errorf("newProcessingGraph: unknown engine '%s' for step %d", step.Engine, i)
		}
		if step.Command == "" {
			return nil, fmt.Errorf("newProcessingGraph: empty command for step %d", i)
		}
		if step.Condition.PassFn == nil {
			steps[i].Condition = pass
		}
	}
	return &ProcessingGraph{Name: name, steps: steps, cleanup: cleanup}, nil
}

// LoadGraph returns the graph from its name and its default configuration
func LoadGraph(ctx context.Context, graphName string) (*ProcessingGraph, GraphConfig, error) {
	var g *ProcessingGraph
	var err error
	switch graphName {
	case GraphCOG:
		g, err = newCOGGraph()
	case GraphBrowse:
		g, err = newBrowseGraph()
	case GraphTopsApp:
		g, err = NewTopsAppGraph(Getenv("ISCE_IMAGE", ""))
	default:
		return LoadGraphFromFile(ctx, graphName)
	}
	if err != nil {
		return nil, nil, err
	}
	return g, DefaultConfig(), nil
}

// LoadGraphFromFile returns the graph from a json file (local or remote uri)
func LoadGraphFromFile(ctx context.Context, graphFile string) (*ProcessingGraph, GraphConfig, error) {
	f, err := fileExists(Getenv("GRAPHPATH", "/data/graph"), graphFile)
	if err != nil {
		// Try to download it
		graphFileUri, e := uri.ParseUri(graphFile)
		if e != nil {
			return nil, nil, fmt.Errorf("LoadGraphFromFile[%s]: unknown graph (%w-%v)", graphFile, err, e)
		}
		graphFilePath, err := os.CreateTemp("", "graph*.json")
		if err != nil {
			return nil, nil, fmt.Errorf("LoadGraphFromFile[%s]: unable to create temp file: %w", graphFile, err)
		}
		graphFilePath.Close()
		defer os.Remove(graphFilePath.Name())
		if err = graphFileUri.DownloadToFile(ctx, graphFilePath.Name()); err != nil {
			return nil, nil, fmt.Errorf("LoadGraphFromFile[%s]: unable to download graph: %w", graphFile, err)
		}

		return LoadGraphFromFile(ctx, graphFilePath.Name())
	}

	byteValue, err := os.ReadFile(f)
	if err != nil {
		return nil, nil, fmt.Errorf("LoadGraphFromFile[%s]: %w", graphFile, err)
	}

	var graphJSON ProcessingGraphJSON
	if err := json.Unmarshal(byteValue, &graphJSON); err != nil {
		return nil, nil, fmt.Errorf("LoadGraphFromFile[%s]: %w", graphFile, err)
	}

	name := graphJSON.Name
	if name == "" {
		name = strings.TrimSuffix(path.Base(graphFile), path.Ext(graphFile))
	}
	var cleanup []Arg
	for _, arg := range graphJSON.Cleanup {
		cleanup = append(cleanup, arg.Arg)
	}
	graph, err := newProcessingGraph(name, graphJSON.Steps, cleanup)
	if err != nil {
		return nil, nil, fmt.Errorf("LoadGraphFromFile[%s]: %w", graphFile, err)
	}

	// Config of the file overrides the default config
	config := DefaultConfig()
	for k, v := range graphJSON.Config {
		config[k] = v
	}

	return graph, config, nil
}

func fileExists(cwd, file string) (string, error) {
	if _, err := os.Stat(file); err == nil || !errors.Is(err, os.ErrNotExist) || cwd == "" {
		return file, err
	}
	file = path.Join(cwd, file)
	return fileExists("", file)
}

// DefaultConfig returns the configuration of the built-in graphs
func DefaultConfig() GraphConfig {
	return GraphConfig{
		// COG
		"nodata":             "0.0",
		"overview_levels":    "2 4 8 16 32",
		"creation_options":   "COMPRESS=DEFLATE TILED=YES BLOCKXSIZE=512 BLOCKYSIZE=512 COPY_SRC_OVERVIEWS=YES",
		"overview_blocksize": "512",
		// Browse
		"thumb_resampling": "cubic",
		"thumb_large":      "10%",
		"thumb_small":      "5%",
		"web_viewer":       "leaflet",
		"zoom":             "6-12",
		// TopsApp
		"topsapp_options": "",
	}
}

// Getenv retrieves the value of the environment variable named by the key.
// Return def if not set
func Getenv(key, def string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return def
}

// newCOGGraph creates the graph converting a band of a raster to a Cloud-Optimized GeoTIFF
func newCOGGraph() (*ProcessingGraph, error) {
	steps := []ProcessingStep{
		// Extract band
		{
			Engine:    command,
			Command:   "gdal_translate",
			Condition: pass,
			Args: []Arg{
				ArgFixed("-of"), ArgFixed("VRT"),
				ArgFixed("-b"), ArgProduct(productBand),
				ArgFixed("-a_nodata"), ArgConfig("nodata"),
				ArgProduct(productSource),
				ArgProduct(productTmp),
			},
		},
		// Overviews
		{
			Engine:    command,
			Command:   "gdaladdo",
			Condition: pass,
			Args: []Arg{
				ArgProduct(productTmp),
				ArgOptions{Key: "overview_levels"},
			},
		},
		// Encoding
		{
			Engine:    command,
			Command:   "gdal_translate",
			Condition: pass,
			Args: []Arg{
				ArgProduct(productTmp),
				ArgProduct(productName),
				ArgOptions{Flag: "-co", Key: "creation_options"},
				ArgFixed("--config"), ArgFixed("GDAL_TIFF_OVR_BLOCKSIZE"), ArgConfig("overview_blocksize"),
			},
		},
	}

	return newProcessingGraph(GraphCOG, steps, []Arg{ArgProduct(productTmp)})
}

// newBrowseGraph creates the graph rendering a product with a colour ramp, its thumbnails and web tiles
func newBrowseGraph() (*ProcessingGraph, error) {
	steps := []ProcessingStep{
		{
			Engine:    command,
			Command:   "gdaldem",
			Condition: pass,
			Args: []Arg{
				ArgFixed("color-relief"), ArgFixed("-alpha"),
				ArgProduct(productName),
				ArgProduct(productRamp),
				ArgProduct(productRGB),
			},
		},
		{
			Engine:    command,
			Command:   "gdal_translate",
			Condition: pass,
			Args: []Arg{
				ArgFixed("-of"), ArgFixed("PNG"),
				ArgFixed("-r"), ArgConfig("thumb_resampling"),
				ArgFixed("-outsize"), ArgConfig("thumb_large"), ArgFixed("0"),
				ArgProduct(productRGB),
				ArgProduct(productThumbLarge),
			},
		},
		{
			Engine:    command,
			Command:   "gdal_translate",
			Condition: pass,
			Args: []Arg{
				ArgFixed("-of"), ArgFixed("PNG"),
				ArgFixed("-r"), ArgConfig("thumb_resampling"),
				ArgFixed("-outsize"), ArgConfig("thumb_small"), ArgFixed("0"),
				ArgProduct(productRGB),
				ArgProduct(productThumbSmall),
			},
		},
		{
			Engine:    python,
			Command:   "gdal2tiles.py",
			Condition: pass,
			Args: []Arg{
				ArgFixed("-w"), ArgConfig("web_viewer"),
				ArgFixed("-z"), ArgConfig("zoom"),
				ArgProduct(productRGB),
				ArgProduct(productTiles),
			},
		},
	}

	return newProcessingGraph(GraphBrowse, steps, []Arg{ArgProduct(productRGB)})
}

// NewTopsAppGraph creates the graph running ISCE topsApp.py on the xml file named by the product
// If image is not empty, topsApp runs in this docker image.
func NewTopsAppGraph(image string) (*ProcessingGraph, error) {
	step := ProcessingStep{
		Engine:    python,
		Command:   "topsApp.py",
		Condition: pass,
		Args: []Arg{
			ArgOptions{Key: "topsapp_options"},
			ArgProduct(productName),
		},
	}
	if image != "" {
		step.Engine = docker
		step.Command = image
		step.Args = append([]Arg{ArgFixed("topsApp.py")}, step.Args...)
	}
	return newProcessingGraph(GraphTopsApp, []ProcessingStep{step}, nil)
}

// Command is an external command ready to be run
type Command struct {
	Engine string
	Name   string // executable, or image for the docker engine
	Args   []string
	// condition to run the command
	condition ProductCondition
}

// Argv returns the command line
func (c Command) Argv() []string {
	return append([]string{c.Name}, c.Args...)
}

// String implements Stringer
func (c Command) String() string {
	return strings.Join(c.Argv(), " ")
}

// commands returns the commands of the graph for a product
func (g *ProcessingGraph) commands(config GraphConfig, p Product) ([]Command, []string, error) {
	cmds := make([]Command, 0, len(g.steps))
	for _, step := range g.steps {
		args, err := step.formatArgs(config, p)
		if err != nil {
			return nil, nil, fmt.Errorf("commands[%s].%w", step.Command, err)
		}
		cmds = append(cmds, Command{Engine: step.Engine, Name: step.Command, Args: args, condition: step.Condition})
	}
	var cleanup []string
	for _, arg := range g.cleanup {
		files, err := formatArgs(arg, config, p)
		if err != nil {
			return nil, nil, fmt.Errorf("commands.cleanup.%w", err)
		}
		cleanup = append(cleanup, files...)
	}
	return cmds, cleanup, nil
}

func (step ProcessingStep) formatArgs(config GraphConfig, p Product) ([]string, error) {
	var args []string
	for _, arg := range step.Args {
		values, err := formatArgs(arg, config, p)
		if err != nil {
			return nil, fmt.Errorf("formatArgs.%w", err)
		}
		args = append(args, values...)
	}
	return args, nil
}

func formatArgs(arg Arg, config GraphConfig, p Product) ([]string, error) {
	switch key := arg.(type) {
	// Fixed arg
	case ArgFixed:
		return []string{string(key)}, nil

	// Specific args from product
	case ArgProduct:
		var valstr string
		switch key {
		case productName:
			valstr = p.Name
		case productSource:
			valstr = p.Source
		case productBand:
			valstr = strconv.Itoa(p.Band)
		case productRamp:
			valstr = p.Ramp
		case productTmp:
			valstr = p.TmpFile()
		case productRGB:
			valstr = p.Base() + "-rgb.tif"
		case productThumbLarge:
			valstr = p.Base() + "-thumb-large.png"
		case productThumbSmall:
			valstr = p.Base() + "-thumb-small.png"
		case productTiles:
			valstr = p.Base() + "-tiles"
		default:
			return nil, fmt.Errorf("key '%s' not found in product", key)
		}
		return []string{valstr}, nil

	// Specific args from config
	case ArgConfig:
		valstr, ok := config[string(key)]
		if !ok {
			return nil, fmt.Errorf("key '%s' not found in config", key)
		}
		return []string{valstr}, nil

	case ArgOptions:
		valstr, ok := config[key.Key]
		if !ok {
			return nil, fmt.Errorf("key '%s' not found in config", key.Key)
		}
		var values []string
		for _, v := range strings.Fields(valstr) {
			if key.Flag != "" {
				values = append(values, key.Flag)
			}
			values = append(values, v)
		}
		return values, nil

	default:
		return nil, fmt.Errorf("unknow Arg Type: %v", key)
	}
}

type LogFilter interface {
	log.Filter
	// WrapError wraps the error with additionnal information from the logs
	WrapError(err error) error
}

// newLogFilter returns the filter of the logs of the command
func newLogFilter(cmd Command) LogFilter {
	switch {
	case cmd.Engine == python || cmd.Engine == docker:
		return &PythonLogFilter{}
	case strings.HasPrefix(path.Base(cmd.Name), "gdal"):
		return &GDALLogFilter{}
	default:
		return &CmdLogFilter{}
	}
}

// PythonLogFilter formats log from python scripts (gdal2tiles.py, topsApp.py)
type PythonLogFilter struct {
	lastError lastLine
}

// GDALLogFilter formats log from GDAL utilities
type GDALLogFilter struct {
	lastError lastLine
}

// CmdLogFilter formats log from other commands
type CmdLogFilter struct {
	lastError lastLine
}

// lastLine is the last error line of a command. stdout and stderr are filtered concurrently.
type lastLine struct {
	mu   sync.Mutex
	line string
}

func (l *lastLine) set(line string) {
	l.mu.Lock()
	l.line = line
	l.mu.Unlock()
}

func (l *lastLine) get() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.line
}

var temporaryErrs = []string{
	"temporary failure",
	"timed out",
}

var pythonException = regexp.MustCompile(`^[A-Za-z_.]*(Error|Exception): `)

// WrapError implements LogFilter
func (f *PythonLogFilter) WrapError(err error) error {
	if lastError := f.lastError.get(); lastError != "" && err != nil {
		err = service.MergeErrors(true, err, errors.New(lastError))
		if err != nil {
			strerr := strings.ToLower(err.Error())
			if strings.Contains(strerr, "fatal") {
				err = service.MakeFatal(err)
			} else {
				for _, tmpErr := range temporaryErrs {
					if strings.Contains(strerr, tmpErr) {
						return service.MakeTemporary(err)
					}
				}
			}
		}
	}
	return err
}

// Filter implement log.Filter
func (f *PythonLogFilter) Filter(msg string, defaultLevel zapcore.Level) (string, zapcore.Level, bool) {
	trimmedmsg := strings.TrimSpace(msg)
	if strings.HasPrefix(trimmedmsg, "FATAL:") || strings.HasPrefix(trimmedmsg, "ERROR:") || pythonException.MatchString(trimmedmsg) {
		f.lastError.set(trimmedmsg)
		return msg, zapcore.ErrorLevel, false
	}
	if strings.HasPrefix(trimmedmsg, "Traceback") {
		return msg, zapcore.WarnLevel, false
	}
	return msg, defaultLevel, false
}

var gdalProgress = regexp.MustCompile(`^0(\.+\d+)*\.*( - done\.)?$`)

// WrapError implements LogFilter
func (f *GDALLogFilter) WrapError(err error) error {
	if line := f.lastError.get(); line != "" && err != nil {
		lastError := strings.ToLower(line)
		for _, tmpErr := range temporaryErrs {
			if strings.Contains(lastError, tmpErr) {
				err = service.MakeTemporary(err)
			}
		}
		if strings.Contains(lastError, "no such file") || strings.Contains(lastError, "does not exist") {
			err = service.MakeFatal(err)
		}
		return fmt.Errorf("%w (%v)", err, line)
	}
	return err
}

// Filter implement log.Filter
func (f *GDALLogFilter) Filter(msg string, defaultLevel zapcore.Level) (string, zapcore.Level, bool) {
	trimmedmsg := strings.TrimSpace(msg)
	switch {
	case trimmedmsg == "":
		return msg, defaultLevel, true
	case strings.HasPrefix(trimmedmsg, "ERROR"):
		f.lastError.set(trimmedmsg)
		return msg, zapcore.ErrorLevel, false
	case strings.HasPrefix(trimmedmsg, "Warning"):
		return msg, zapcore.WarnLevel, false
	case gdalProgress.MatchString(trimmedmsg):
		return msg, zapcore.DebugLevel, false
	}
	return msg, defaultLevel, false
}

// WrapError implements LogFilter
func (f *CmdLogFilter) WrapError(err error) error {
	if line := f.lastError.get(); line != "" && err != nil {
		if strings.Contains(line, "FATAL ERROR:") {
			err = service.MakeFatal(err)
		}
		if strings.Contains(line, "TEMPORARY ERROR:") {
			err = service.MakeTemporary(err)
		}
		return fmt.Errorf("%w (%v)", err, line)
	}
	return err
}

// Filter implement log.Filter
func (f *CmdLogFilter) Filter(msg string, defaultLevel zapcore.Level) (string, zapcore.Level, bool) {
	msg = strings.TrimSuffix(msg, "\n")
	trimmedmsg := strings.TrimSpace(msg)
	if strings.Contains(trimmedmsg, "ERROR:") {
		f.lastError.set(msg)
		return msg, zapcore.ErrorLevel, false
	} else if strings.HasPrefix(trimmedmsg, "WARN:") {
		return msg, zapcore.WarnLevel, false
	}
	return msg, zapcore.DebugLevel, false
}
