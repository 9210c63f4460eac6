package graph_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path"
	"strings"

	"github.com/scottyhq/dinoSARaws/graph"
	"github.com/scottyhq/dinoSARaws/service"
	"github.com/scottyhq/dinoSARaws/service/log"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.uber.org/zap/zapcore"
)

// fakeDocker implements DockerManager
type fakeDocker struct {
	images []string
	args   [][]string
}

func (d *fakeDocker) Process(ctx context.Context, workdir, image string, args []string, envs []string) (log.Result, error) {
	d.images = append(d.images, image)
	d.args = append(d.args, args)
	return log.Result{Args: append([]string{image}, args...)}, nil
}

var _ = Describe("COG plan", func() {
	var (
		plan *graph.Plan
		err  error
	)

	BeforeEach(func() {
		g, config, e := graph.LoadGraph(context.Background(), graph.GraphCOG)
		Expect(e).NotTo(HaveOccurred())
		plan, err = graph.NewPlan(g, config, graph.ISCEProducts())
	})

	It("should emit three steps per product", func() {
		Expect(err).NotTo(HaveOccurred())
		Expect(plan.Commands()).To(HaveLen(3 * len(graph.ISCEProducts())))
		for _, pp := range plan.Products {
			Expect(pp.Commands).To(HaveLen(3))
		}
	})

	It("should extract, add overviews and encode", func() {
		Expect(err).NotTo(HaveOccurred())
		cmds := plan.Commands()
		Expect(strings.Join(cmds[0], " ")).To(Equal("gdal_translate -of VRT -b 1 -a_nodata 0.0 merged/filt_topophase.unw.geo.vrt tmp-amplitude-cog.vrt"))
		Expect(strings.Join(cmds[1], " ")).To(Equal("gdaladdo tmp-amplitude-cog.vrt 2 4 8 16 32"))
		Expect(strings.Join(cmds[2], " ")).To(Equal("gdal_translate tmp-amplitude-cog.vrt amplitude-cog.tif" +
			" -co COMPRESS=DEFLATE -co TILED=YES -co BLOCKXSIZE=512 -co BLOCKYSIZE=512 -co COPY_SRC_OVERVIEWS=YES" +
			" --config GDAL_TIFF_OVR_BLOCKSIZE 512"))
		Expect(strings.Join(cmds[3], " ")).To(Equal("gdal_translate -of VRT -b 2 -a_nodata 0.0 merged/filt_topophase.unw.geo.vrt tmp-unwrapped-phase-cog.vrt"))
	})

	It("should use one intermediate file per product", func() {
		Expect(err).NotTo(HaveOccurred())
		tmps := map[string]bool{}
		for _, pp := range plan.Products {
			tmp := pp.Product.TmpFile()
			Expect(tmps).NotTo(HaveKey(tmp))
			tmps[tmp] = true
			Expect(pp.Commands[0].Args).To(HaveLen(8))
			Expect(pp.Commands[0].Args[7]).To(Equal(tmp))
			Expect(pp.Commands[1].Args[0]).To(Equal(tmp))
			Expect(pp.Commands[2].Args[0]).To(Equal(tmp))
			Expect(pp.Commands[2].Args[1]).To(Equal(pp.Product.Name))
			Expect(pp.Cleanup).To(Equal([]string{tmp}))
		}
	})

	It("should use the config", func() {
		g, config, e := graph.LoadGraph(context.Background(), graph.GraphCOG)
		Expect(e).NotTo(HaveOccurred())
		config["overview_levels"] = "2 4"
		config["nodata"] = "-9999"
		plan, err = graph.NewPlan(g, config, graph.ISCEProducts()[:1])
		Expect(err).NotTo(HaveOccurred())
		cmds := plan.Commands()
		Expect(cmds[0]).To(ContainElement("-9999"))
		Expect(cmds[1]).To(Equal([]string{"gdaladdo", "tmp-amplitude-cog.vrt", "2", "4"}))
	})

	Context("with invalid products", func() {
		It("should refuse duplicated names", func() {
			g, config, _ := graph.LoadGraph(context.Background(), graph.GraphCOG)
			products := append(graph.ISCEProducts(), graph.ISCEProducts()[0])
			_, err = graph.NewPlan(g, config, products)
			Expect(err).To(HaveOccurred())
		})
		It("should refuse products sharing an intermediate file", func() {
			g, config, _ := graph.LoadGraph(context.Background(), graph.GraphCOG)
			for _, names := range [][2]string{
				{"amplitude-cog.tif", "out/amplitude-cog.tif"},
				{"x.tif", "x.vrt"},
			} {
				_, err = graph.NewPlan(g, config, []graph.Product{
					{Name: names[0], Source: "a.vrt", Band: 1},
					{Name: names[1], Source: "a.vrt", Band: 2},
				}, graph.WithParallelism(2))
				Expect(err).To(HaveOccurred(), names[1])
			}
		})
		It("should refuse band 0", func() {
			g, config, _ := graph.LoadGraph(context.Background(), graph.GraphCOG)
			_, err = graph.NewPlan(g, config, []graph.Product{{Name: "a.tif", Source: "a.vrt", Band: 0}})
			Expect(err).To(HaveOccurred())
		})
		It("should refuse a missing config key", func() {
			g, config, _ := graph.LoadGraph(context.Background(), graph.GraphCOG)
			delete(config, "overview_levels")
			_, err = graph.NewPlan(g, config, graph.ISCEProducts())
			Expect(err).To(HaveOccurred())
		})
	})
})

var _ = Describe("Browse plan", func() {
	It("should render, create thumbnails and tiles", func() {
		g, config, err := graph.LoadGraph(context.Background(), graph.GraphBrowse)
		Expect(err).NotTo(HaveOccurred())
		products := graph.WithRamps(graph.ISCEProducts(), map[string]string{"amplitude-cog.tif": "amplitude-cog.cpt"})
		Expect(products).To(HaveLen(1))
		plan, err := graph.NewPlan(g, config, products)
		Expect(err).NotTo(HaveOccurred())
		cmds := plan.Commands()
		Expect(cmds).To(HaveLen(4))
		Expect(strings.Join(cmds[0], " ")).To(Equal("gdaldem color-relief -alpha amplitude-cog.tif amplitude-cog.cpt amplitude-cog-rgb.tif"))
		Expect(strings.Join(cmds[1], " ")).To(Equal("gdal_translate -of PNG -r cubic -outsize 10% 0 amplitude-cog-rgb.tif amplitude-cog-thumb-large.png"))
		Expect(strings.Join(cmds[2], " ")).To(Equal("gdal_translate -of PNG -r cubic -outsize 5% 0 amplitude-cog-rgb.tif amplitude-cog-thumb-small.png"))
		Expect(strings.Join(cmds[3], " ")).To(Equal("gdal2tiles.py -w leaflet -z 6-12 amplitude-cog-rgb.tif amplitude-cog-tiles"))
		Expect(plan.Products[0].Cleanup).To(Equal([]string{"amplitude-cog-rgb.tif"}))
	})

	It("should require a ramp", func() {
		g, config, err := graph.LoadGraph(context.Background(), graph.GraphBrowse)
		Expect(err).NotTo(HaveOccurred())
		_, err = graph.NewPlan(g, config, graph.ISCEProducts())
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("TopsApp plan", func() {
	It("should run topsApp in docker", func() {
		g, err := graph.NewTopsAppGraph("isce/isce2:latest")
		Expect(err).NotTo(HaveOccurred())
		config := graph.DefaultConfig()
		config["topsapp_options"] = "--steps"
		d := &fakeDocker{}
		plan, err := graph.NewPlan(g, config, []graph.Product{{Name: "topsApp.xml"}}, graph.WithDocker(d, nil))
		Expect(err).NotTo(HaveOccurred())
		Expect(plan.Run(context.Background(), tempDir())).To(Succeed())
		Expect(d.images).To(Equal([]string{"isce/isce2:latest"}))
		Expect(d.args).To(Equal([][]string{{"topsApp.py", "--steps", "topsApp.xml"}}))
	})

	It("should fail without docker manager", func() {
		g, err := graph.NewTopsAppGraph("isce/isce2:latest")
		Expect(err).NotTo(HaveOccurred())
		plan, err := graph.NewPlan(g, graph.DefaultConfig(), []graph.Product{{Name: "topsApp.xml"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(plan.Run(context.Background(), tempDir())).NotTo(Succeed())
	})

	It("should run topsApp.py without image", func() {
		g, err := graph.NewTopsAppGraph("")
		Expect(err).NotTo(HaveOccurred())
		plan, err := graph.NewPlan(g, graph.DefaultConfig(), []graph.Product{{Name: "topsApp.xml"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(plan.Commands()).To(Equal([][]string{{"topsApp.py", "topsApp.xml"}}))
	})
})

var _ = Describe("Run", func() {
	var (
		workdir  string
		g        *graph.ProcessingGraph
		products []graph.Product
	)

	BeforeEach(func() {
		workdir = tempDir()
		Expect(os.WriteFile(path.Join(workdir, "source.txt"), []byte("data"), 0644)).To(Succeed())
		var err error
		g, err = graph.NewProcessingGraph("copy", []graph.ProcessingStep{
			{Engine: "cmd", Command: "cp", Args: []graph.Arg{graph.ArgProduct("source"), graph.ArgProduct("tmp")}},
			{Engine: "cmd", Command: "cp", Args: []graph.Arg{graph.ArgProduct("tmp"), graph.ArgProduct("name")}, Condition: graph.ConditionOutputNotExist},
		}, []graph.Arg{graph.ArgProduct("tmp")})
		Expect(err).NotTo(HaveOccurred())
		products = []graph.Product{
			{Name: "a.tif", Source: "source.txt"},
			{Name: "b.tif", Source: "source.txt"},
			{Name: "c.tif", Source: "source.txt"},
		}
	})

	It("should create the products and remove the intermediate files", func() {
		plan, err := graph.NewPlan(g, graph.GraphConfig{}, products, graph.WithParallelism(3))
		Expect(err).NotTo(HaveOccurred())
		Expect(plan.Run(context.Background(), workdir)).To(Succeed())
		for _, p := range products {
			b, err := os.ReadFile(path.Join(workdir, p.Name))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(b)).To(Equal("data"))
			Expect(path.Join(workdir, p.TmpFile())).NotTo(BeAnExistingFile())
		}
	})

	It("should report the last error of a command writing on both streams", func() {
		script := `for i in $(seq 1 500); do echo "ERROR: out $i"; echo "ERROR: err $i" 1>&2; done; exit 1`
		g, err := graph.NewProcessingGraph("noisy", []graph.ProcessingStep{
			{Engine: "cmd", Command: "sh", Args: []graph.Arg{graph.ArgFixed("-c"), graph.ArgFixed(script)}},
		}, nil)
		Expect(err).NotTo(HaveOccurred())
		plan, err := graph.NewPlan(g, graph.GraphConfig{}, products, graph.WithParallelism(3))
		Expect(err).NotTo(HaveOccurred())
		err = plan.Run(context.Background(), workdir)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(MatchRegexp(`ERROR: (out|err) \d+`))
	})

	It("should skip the steps whose condition fails", func() {
		Expect(os.WriteFile(path.Join(workdir, "a.tif"), []byte("old"), 0644)).To(Succeed())
		plan, err := graph.NewPlan(g, graph.GraphConfig{}, products[:1])
		Expect(err).NotTo(HaveOccurred())
		Expect(plan.Run(context.Background(), workdir)).To(Succeed())
		b, err := os.ReadFile(path.Join(workdir, "a.tif"))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(b)).To(Equal("old"))
	})

	It("should return the failure of a step", func() {
		products[1].Source = "missing.txt"
		plan, err := graph.NewPlan(g, graph.GraphConfig{}, products)
		Expect(err).NotTo(HaveOccurred())
		err = plan.Run(context.Background(), workdir)
		Expect(err).To(HaveOccurred())
		var execErr *log.ExecError
		Expect(errors.As(err, &execErr)).To(BeTrue())
		Expect(execErr.Result.ExitCode).To(Equal(1))
		Expect(execErr.Result.Args[0]).To(Equal("cp"))
		Expect(path.Join(workdir, "b.tif")).NotTo(BeAnExistingFile())
	})
})

var _ = Describe("LoadGraph", func() {
	It("should load a graph exported to json", func() {
		g, config, err := graph.LoadGraph(context.Background(), graph.GraphCOG)
		Expect(err).NotTo(HaveOccurred())
		config["overview_levels"] = "2 4 8"
		b, err := json.Marshal(g.ToJSON(config))
		Expect(err).NotTo(HaveOccurred())
		file := path.Join(tempDir(), "cog.json")
		Expect(os.WriteFile(file, b, 0644)).To(Succeed())

		loaded, loadedConfig, err := graph.LoadGraph(context.Background(), file)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.Name).To(Equal(graph.GraphCOG))
		Expect(loadedConfig["overview_levels"]).To(Equal("2 4 8"))
		Expect(loaded.Steps()).To(HaveLen(3))
		for i, step := range loaded.Steps() {
			Expect(step.Engine).To(Equal(g.Steps()[i].Engine))
			Expect(step.Command).To(Equal(g.Steps()[i].Command))
			Expect(step.Args).To(Equal(g.Steps()[i].Args))
			Expect(step.Condition.Name).To(Equal(g.Steps()[i].Condition.Name))
		}

		expected, err := graph.NewPlan(g, config, graph.ISCEProducts())
		Expect(err).NotTo(HaveOccurred())
		actual, err := graph.NewPlan(loaded, loadedConfig, graph.ISCEProducts())
		Expect(err).NotTo(HaveOccurred())
		Expect(actual.Commands()).To(Equal(expected.Commands()))
		Expect(actual.Products[0].Cleanup).To(Equal(expected.Products[0].Cleanup))
	})

	It("should load a condition", func() {
		var step graph.ProcessingStep
		Expect(json.Unmarshal([]byte(`{"engine":"cmd","command":"gdaladdo","args":[{"type":"product","value":"name"}],"condition":"source_exists"}`), &step)).To(Succeed())
		Expect(step.Condition.Name).To(Equal(graph.ConditionSourceExists.Name))
		Expect(step.Args).To(Equal([]graph.Arg{graph.ArgProduct("name")}))
	})

	It("should fail on unknown condition or arg", func() {
		var step graph.ProcessingStep
		Expect(json.Unmarshal([]byte(`{"engine":"cmd","command":"ls","condition":"unknown"}`), &step)).NotTo(Succeed())
		Expect(json.Unmarshal([]byte(`{"engine":"cmd","command":"ls","args":[{"type":"tile","value":"x"}]}`), &step)).NotTo(Succeed())
	})

	It("should fail on unknown graph", func() {
		os.Setenv("GRAPHPATH", tempDir())
		defer os.Unsetenv("GRAPHPATH")
		_, _, err := graph.LoadGraph(context.Background(), "unknown-graph")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("LogFilters", func() {
	It("should catch GDAL errors", func() {
		f := &graph.GDALLogFilter{}
		_, level, ignore := f.Filter("ERROR 4: merged/los.rdr.geo.vrt: No such file or directory\n", zapcore.WarnLevel)
		Expect(ignore).To(BeFalse())
		Expect(level).To(Equal(zapcore.ErrorLevel))
		err := f.WrapError(errors.New("exit status 1"))
		Expect(err.Error()).To(ContainSubstring("ERROR 4"))
		Expect(service.Fatal(err)).To(BeTrue())
	})

	It("should lower GDAL progress", func() {
		f := &graph.GDALLogFilter{}
		_, level, _ := f.Filter("0...10...20...30...40...50...60...70...80...90...100 - done.", zapcore.WarnLevel)
		Expect(level).To(Equal(zapcore.DebugLevel))
		Expect(f.WrapError(nil)).To(BeNil())
	})

	It("should catch python exceptions", func() {
		f := &graph.PythonLogFilter{}
		_, level, _ := f.Filter("ValueError: could not find orbit", zapcore.WarnLevel)
		Expect(level).To(Equal(zapcore.ErrorLevel))
		_, level, _ = f.Filter("Traceback (most recent call last):", zapcore.DebugLevel)
		Expect(level).To(Equal(zapcore.WarnLevel))
		err := f.WrapError(errors.New("exit status 1"))
		Expect(err.Error()).To(ContainSubstring("could not find orbit"))
		Expect(service.Temporary(err)).To(BeFalse())
	})
})
