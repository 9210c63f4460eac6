package catalog_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/scottyhq/dinoSARaws/catalog"
	"github.com/scottyhq/dinoSARaws/catalog/entities"
	"github.com/scottyhq/dinoSARaws/common"
	"github.com/scottyhq/dinoSARaws/interface/catalog/asf"
)

const asfQueryFile = "testdata/asf_query.json"

type fakeProvider struct {
	scenes entities.Scenes
	areas  []entities.Area
}

func (p *fakeProvider) SearchScenes(ctx context.Context, area *entities.Area) (entities.Scenes, error) {
	p.areas = append(p.areas, *area)
	return p.scenes, nil
}

func granules(scenes entities.Scenes) []string {
	var names []string
	for _, s := range scenes {
		names = append(names, s.GranuleName)
	}
	return names
}

var _ = Describe("Catalog", func() {
	var (
		ctx    = context.Background()
		scenes entities.Scenes
		err    error
	)

	BeforeEach(func() {
		scenes, err = catalog.Load(ctx, asfQueryFile)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Load", func() {
		It("should remove the double entries, keeping the latest processed product", func() {
			Expect(scenes).To(HaveLen(5))
			Expect(granules(scenes)).To(ContainElement("S1A_IW_SLC__1SDV_20170828T135617_20170828T135645_018143_01E7A5_9C1D"))
			Expect(granules(scenes)).NotTo(ContainElement("S1A_IW_SLC__1SDV_20170828T135617_20170828T135645_018143_01E7A5_4F2C"))
		})

		It("should sort the scenes by date", func() {
			Expect(scenes[0].DateString).To(Equal("2017-08-04"))
			Expect(scenes[len(scenes)-1].DateString).To(Equal("2017-08-28"))
		})

		It("should compute the derived fields", func() {
			s := scenes[0]
			Expect(s.DateStamp).To(Equal("20170804"))
			Expect(s.UTC).To(Equal("13:56:16"))
			Expect(s.RelativeOrbit).To(Equal(64))
			Expect(s.FlightDirection).To(Equal(common.DirectionASCENDING))
			for _, s := range scenes {
				if s.RelativeOrbit == 64 {
					Expect(s.OrbitCode).To(Equal(0))
				} else {
					Expect(s.OrbitCode).To(Equal(1))
				}
			}
		})

		It("should reload a saved inventory", func() {
			file := filepath.Join(tempDir(), catalog.InventoryFile)
			Expect(catalog.Save(scenes, file)).To(Succeed())
			b, err := os.ReadFile(file)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(b)).To(HavePrefix(`{"type":"FeatureCollection"`))

			reloaded, err := catalog.Load(ctx, file)
			Expect(err).NotTo(HaveOccurred())
			Expect(granules(reloaded)).To(Equal(granules(scenes)))
			Expect(reloaded[2].SceneDate).To(BeTemporally("==", scenes[2].SceneDate))
			Expect(reloaded[2].OrbitCode).To(Equal(scenes[2].OrbitCode))
			Expect(reloaded[2].DownloadURL).To(Equal(scenes[2].DownloadURL))
		})

		It("should fail on a missing file", func() {
			_, err := catalog.Load(ctx, "testdata/missing.json")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Inventory", func() {
		It("should search, clean and save the inventory", func() {
			raw, err := os.ReadFile(asfQueryFile)
			Expect(err).NotTo(HaveOccurred())
			found, err := asf.ParseScenes(raw)
			Expect(err).NotTo(HaveOccurred())
			provider := fakeProvider{scenes: found}
			dir := tempDir()
			c := catalog.Catalog{Provider: &provider, WorkingDir: dir}

			inventory, err := c.Inventory(ctx, entities.Area{SNWE: [4]float64{37, 38, -119, -118}})
			Expect(err).NotTo(HaveOccurred())
			Expect(inventory).To(HaveLen(5))
			Expect(provider.areas).To(HaveLen(1))
			Expect(filepath.Join(dir, catalog.InventoryFile)).To(BeAnExistingFile())
		})

		It("should fail without provider", func() {
			_, err := (&catalog.Catalog{}).Inventory(ctx, entities.Area{})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Summary", func() {
		It("should summarize the orbits, most recent orbit number first", func() {
			summary := catalog.Summarize(scenes)
			Expect(summary).To(Equal([]catalog.OrbitSummary{
				{Orbit: 144, Start: "2017-08-20", Stop: "2017-08-20", Dates: 1, Frames: 1, Direction: "DESCENDING", UTC: "01:50:00"},
				{Orbit: 64, Start: "2017-08-04", Stop: "2017-08-28", Dates: 3, Frames: 4, Direction: "ASCENDING", UTC: "13:56:16"},
			}))
			Expect(catalog.ArchiveSize(summary)).To(BeNumerically("~", 0.025, 1e-9))
		})

		It("should list the acquisitions of an orbit", func() {
			Expect(catalog.Acquisitions(scenes, 64)).To(Equal([]catalog.Acquisition{
				{Date: "2017-08-04", Platform: "Sentinel-1A", DT: 0, Frames: 1},
				{Date: "2017-08-16", Platform: "Sentinel-1B", DT: 12, Frames: 1},
				{Date: "2017-08-28", Platform: "Sentinel-1A", DT: 12, Frames: 2},
			}))
		})

		It("should write the csv files", func() {
			dir := tempDir()
			_, err := catalog.WriteSummary(ctx, scenes, dir)
			Expect(err).NotTo(HaveOccurred())

			b, err := os.ReadFile(filepath.Join(dir, catalog.SummaryFile))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(b)).To(Equal("Orbit,Start,Stop,Dates,Frames,Direction,UTC\n" +
				"144,2017-08-20,2017-08-20,1,1,DESCENDING,01:50:00\n" +
				"64,2017-08-04,2017-08-28,3,4,ASCENDING,13:56:16\n"))

			b, err = os.ReadFile(filepath.Join(dir, "acquisitions_64.csv"))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(b)).To(Equal("sceneDateString,platform,dt,nFrames\n" +
				"2017-08-04,Sentinel-1A,0,1\n" +
				"2017-08-16,Sentinel-1B,12,1\n" +
				"2017-08-28,Sentinel-1A,12,2\n"))
			Expect(filepath.Join(dir, "acquisitions_144.csv")).To(BeAnExistingFile())
		})

		It("should write the footprints per date", func() {
			dir := tempDir()
			Expect(catalog.WriteFootprints(scenes, dir)).To(Succeed())
			b, err := os.ReadFile(filepath.Join(dir, "64", "2017-08-28.geojson"))
			Expect(err).NotTo(HaveOccurred())
			fc := struct {
				Features []struct {
					Properties map[string]string `json:"properties"`
				} `json:"features"`
			}{}
			Expect(json.Unmarshal(b, &fc)).To(Succeed())
			Expect(fc.Features).To(HaveLen(2))
			Expect(fc.Features[0].Properties).To(HaveKey("downloadUrl"))
			Expect(filepath.Join(dir, "144", "2017-08-20.geojson")).To(BeAnExistingFile())
		})
	})

	Describe("Pairs", func() {
		It("should find the scenes of a date", func() {
			found, err := catalog.FindScenes(scenes, 64, "20170828")
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(HaveLen(2))
			_, err = catalog.FindScenes(scenes, 144, "20170828")
			Expect(err).To(HaveOccurred())
		})

		It("should list the consecutive pairs, most recent first", func() {
			Expect(catalog.Dates(scenes, 64)).To(Equal([]string{"20170828", "20170816", "20170804"}))
			Expect(catalog.Pairs(scenes, 64, 0)).To(Equal([]common.Pair{
				{Main: "20170828", Secondary: "20170816", Path: 64},
				{Main: "20170816", Secondary: "20170804", Path: 64},
			}))
			Expect(catalog.Pairs(scenes, 64, 1)).To(HaveLen(1))
			Expect(catalog.Pairs(scenes, 144, 0)).To(BeEmpty())
		})

		It("should return the scenes of a pair", func() {
			main, secondary, err := catalog.PairScenes(scenes, common.Pair{Main: "20170828", Secondary: "20170816", Path: 64})
			Expect(err).NotTo(HaveOccurred())
			Expect(main).To(HaveLen(2))
			Expect(secondary).To(HaveLen(1))
			Expect(secondary[0].Platform).To(Equal("Sentinel-1B"))
		})

		It("should complete the attributes of a pair with its granules", func() {
			attrs, err := catalog.PairAttrs(scenes, common.Pair{Main: "20170828", Secondary: "20170816", Path: 64}, common.PairAttrs{Swaths: []int{1, 2}})
			Expect(err).NotTo(HaveOccurred())
			Expect(attrs.Swaths).To(Equal([]int{1, 2}))
			Expect(attrs.MainScenes).To(HaveLen(2))
			Expect(attrs.SecondaryScenes).To(HaveLen(1))
			Expect(attrs.SecondaryScenes[0]).To(HavePrefix("S1B_IW_SLC"))

			_, err = catalog.PairAttrs(scenes, common.Pair{Main: "20990101", Secondary: "20170816", Path: 64}, common.PairAttrs{})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("ROI", func() {
		It("should write the roi files", func() {
			dir := tempDir()
			Expect(catalog.WriteROI(dir, [4]float64{37, 38.5, -119, -118})).To(Succeed())
			b, err := os.ReadFile(filepath.Join(dir, catalog.ROITextFile))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(b)).To(Equal("[37.000, 38.500, -119.000, -118.000]"))
			b, err = os.ReadFile(filepath.Join(dir, catalog.ROIWKTFile))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(b)).To(HavePrefix("POLYGON"))
			b, err = os.ReadFile(filepath.Join(dir, catalog.ROIGeoJSONFile))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(b)).To(ContainSubstring(`"Polygon"`))
		})

		It("should reject an invalid box", func() {
			Expect(catalog.WriteROI(tempDir(), [4]float64{38, 37, -119, -118})).NotTo(Succeed())
		})

		It("should compute the bounds of a polygon file", func() {
			snwe, err := catalog.ROIFromBytes([]byte("POLYGON((-119 37,-118 37.5,-118.5 38,-119 37))"), 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(snwe).To(Equal([4]float64{37, 38, -119, -118}))

			snwe, err = catalog.ROIFromBytes([]byte(`{"type":"Polygon","coordinates":[[[-119,37],[-118,37.5],[-118.5,38],[-119,37]]]}`), 0.5)
			Expect(err).NotTo(HaveOccurred())
			// buffers are approximated by segments
			Expect(snwe[0]).To(BeNumerically("~", 36.5, 1e-2))
			Expect(snwe[1]).To(BeNumerically("~", 38.5, 1e-2))
			Expect(snwe[2]).To(BeNumerically("~", -119.5, 1e-2))
			Expect(snwe[3]).To(BeNumerically("~", -117.5, 1e-2))
		})
	})

	Describe("Handler", func() {
		var router *mux.Router
		raw, _ := os.ReadFile(asfQueryFile)

		BeforeEach(func() {
			router = mux.NewRouter()
			found, err := asf.ParseScenes(raw)
			Expect(err).NotTo(HaveOccurred())
			c := catalog.Catalog{Provider: &fakeProvider{scenes: found}}
			c.AddHandler(router)
		})

		post := func(path string, values url.Values) *httptest.ResponseRecorder {
			req := httptest.NewRequest("POST", path, strings.NewReader(values.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			return w
		}

		It("should return the inventory of an area", func() {
			w := post("/catalog/scenes", url.Values{"area": {`{"snwe":[37,38,-119,-118]}`}})
			Expect(w.Code).To(Equal(http.StatusOK))
			var inventory entities.Scenes
			Expect(json.NewDecoder(w.Body).Decode(&inventory)).To(Succeed())
			Expect(inventory).To(HaveLen(5))
		})

		It("should reject a missing area", func() {
			w := post("/catalog/scenes", url.Values{})
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("should return the pairs of an orbit", func() {
			w := post("/catalog/orbits/64/pairs?n=1", url.Values{"scenes": {string(raw)}})
			Expect(w.Code).To(Equal(http.StatusOK))
			var pairs []common.Pair
			Expect(json.NewDecoder(bytes.NewReader(w.Body.Bytes())).Decode(&pairs)).To(Succeed())
			Expect(pairs).To(Equal([]common.Pair{{Main: "20170828", Secondary: "20170816", Path: 64}}))
		})

		It("should return the summary", func() {
			w := post("/catalog/summary", url.Values{"scenes": {string(raw)}})
			Expect(w.Code).To(Equal(http.StatusOK))
			var summary []catalog.OrbitSummary
			Expect(json.Unmarshal(w.Body.Bytes(), &summary)).To(Succeed())
			Expect(summary).To(HaveLen(2))
		})
	})
})
