package workflow_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/scottyhq/dinoSARaws/catalog"
	"github.com/scottyhq/dinoSARaws/catalog/entities"
	"github.com/scottyhq/dinoSARaws/common"
	db "github.com/scottyhq/dinoSARaws/interface/database"
	"github.com/scottyhq/dinoSARaws/workflow"
)

const asfQueryFile = "../catalog/testdata/asf_query.json"

type fakeProvider struct {
	scenes entities.Scenes
	areas  []entities.Area
}

func (p *fakeProvider) SearchScenes(ctx context.Context, area *entities.Area) (entities.Scenes, error) {
	p.areas = append(p.areas, *area)
	return p.scenes, nil
}

var _ = Describe("Workflow", func() {
	var (
		ctx       = context.Background()
		aoi       = "longvalley"
		err       error
		backend   *memoryBackend
		pairQueue *MokePublisher
		provider  *fakeProvider
		wf        *workflow.Workflow
	)

	pairToIngest := func(main, secondary string, retryCount int) common.PairToIngest {
		return common.PairToIngest{
			Pair: common.Pair{Main: main, Secondary: secondary, Path: 64},
			Data: common.PairAttrs{
				Swaths:          []int{1, 2},
				MainScenes:      []string{"S1A_IW_SLC__1SDV_" + main + "T135623_" + main + "T135650_018152_01E81B_1111"},
				SecondaryScenes: []string{"S1B_IW_SLC__1SDV_" + secondary + "T135553_" + secondary + "T135620_007081_00C7A6_2222"},
			},
			RetryCount: retryCount,
		}
	}

	lastPair := func() common.PairToProcess {
		Expect(pairQueue.messages).NotTo(BeEmpty())
		p := common.PairToProcess{}
		Expect(json.Unmarshal(pairQueue.messages[len(pairQueue.messages)-1], &p)).To(Succeed())
		return p
	}

	BeforeEach(func() {
		backend = newMemoryBackend()
		pairQueue = &MokePublisher{}
		provider = &fakeProvider{}
		wf = workflow.NewWorkflow(backend, pairQueue, &catalog.Catalog{Provider: provider})
	})

	Describe("Creating AOI", func() {
		It("should create an aoi", func() {
			Expect(wf.CreateAOI(ctx, aoi)).To(Succeed())
			aois, err := wf.AOIs(ctx, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(aois).To(Equal([]db.AOI{{ID: aoi, Status: common.StatusNEW}}))
		})

		It("should return an AlreadyExists error", func() {
			Expect(wf.CreateAOI(ctx, aoi)).To(Succeed())
			Expect(wf.CreateAOI(ctx, aoi)).To(Equal(db.ErrAlreadyExists{Type: "aoi", ID: aoi}))
		})
	})

	Describe("Ingesting a pair", func() {
		var id int
		BeforeEach(func() {
			Expect(wf.CreateAOI(ctx, aoi)).To(Succeed())
		})

		Context("With a valid pair", func() {
			JustBeforeEach(func() {
				id, err = wf.IngestPair(ctx, aoi, pairToIngest("20170828", "20170816", 2))
				Expect(err).NotTo(HaveOccurred())
			})
			It("should create a pending pair", func() {
				pair, err := wf.Pair(ctx, id)
				Expect(err).NotTo(HaveOccurred())
				Expect(pair.Status).To(Equal(common.StatusPENDING))
				Expect(pair.AOI).To(Equal(aoi))
				Expect(pair.RetryCountDown).To(Equal(2))
				Expect(pair.IntName()).To(Equal("int-20170828-20170816"))
			})
			It("should post a message in pairQueue", func() {
				Expect(pairQueue.messages).To(HaveLen(1))
				p := lastPair()
				Expect(p.ID).To(Equal(id))
				Expect(p.Pair).To(Equal(common.Pair{Main: "20170828", Secondary: "20170816", Path: 64}))
				Expect(p.Data.Swaths).To(Equal([]int{1, 2}))
			})
			It("should update the status of the aoi", func() {
				aois, err := wf.AOIs(ctx, aoi)
				Expect(err).NotTo(HaveOccurred())
				Expect(aois[0].Status).To(Equal(common.StatusPENDING))
			})
			It("should refuse the same pair twice", func() {
				_, err = wf.IngestPair(ctx, aoi, pairToIngest("20170828", "20170816", 2))
				Expect(err).To(Equal(db.ErrAlreadyExists{Type: "pair", ID: "int-20170828-20170816"}))
				Expect(pairQueue.messages).To(HaveLen(1))
			})
		})

		Context("With an invalid pair", func() {
			It("should refuse a main date before the secondary date", func() {
				_, err = wf.IngestPair(ctx, aoi, pairToIngest("20170816", "20170828", 0))
				Expect(err).To(HaveOccurred())
			})
			It("should refuse a pair without scenes", func() {
				p := pairToIngest("20170828", "20170816", 0)
				p.Data.SecondaryScenes = nil
				_, err = wf.IngestPair(ctx, aoi, p)
				Expect(err).To(HaveOccurred())
			})
			It("should refuse a pair of an unknown aoi", func() {
				_, err = wf.IngestPair(ctx, "unknown", pairToIngest("20170828", "20170816", 0))
				Expect(err).To(HaveOccurred())
				Expect(pairQueue.messages).To(BeEmpty())
			})
		})

		Context("When the queue is unavailable", func() {
			It("should not create the pair", func() {
				pairQueue.fail = true
				_, err = wf.IngestPair(ctx, aoi, pairToIngest("20170828", "20170816", 0))
				Expect(err).To(HaveOccurred())
				pairs, err := wf.Pairs(ctx, aoi, "", 0, -1)
				Expect(err).NotTo(HaveOccurred())
				Expect(pairs).To(BeEmpty())
			})
		})

		Context("With several pairs", func() {
			It("should skip the existing pairs", func() {
				_, err = wf.IngestPair(ctx, aoi, pairToIngest("20170828", "20170816", 0))
				Expect(err).NotTo(HaveOccurred())
				ids, err := wf.IngestPairs(ctx, aoi, []common.PairToIngest{
					pairToIngest("20170828", "20170816", 0),
					pairToIngest("20170816", "20170804", 0),
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(ids).To(HaveLen(1))
				Expect(pairQueue.messages).To(HaveLen(2))
			})
		})
	})

	Describe("Finishing a pair", func() {
		var id int
		BeforeEach(func() {
			Expect(wf.CreateAOI(ctx, aoi)).To(Succeed())
			id, err = wf.IngestPair(ctx, aoi, pairToIngest("20170828", "20170816", 1))
			Expect(err).NotTo(HaveOccurred())
			pairQueue.Reset()
		})

		Context("With success", func() {
			outputs := []string{"s3://int-20170828-20170816/output/index.html"}
			JustBeforeEach(func() {
				Expect(wf.ResultHandler(ctx, common.Result{
					Type:    common.ResultTypePair,
					ID:      id,
					Status:  common.StatusDONE,
					Outputs: outputs,
				})).To(Succeed())
			})
			It("should update the status and the outputs of the pair", func() {
				pair, err := wf.Pair(ctx, id)
				Expect(err).NotTo(HaveOccurred())
				Expect(pair.Status).To(Equal(common.StatusDONE))
				Expect(pair.Outputs).To(Equal(outputs))
			})
			It("should update the status of the aoi", func() {
				aois, err := wf.AOIs(ctx, aoi)
				Expect(err).NotTo(HaveOccurred())
				Expect(aois[0].Status).To(Equal(common.StatusDONE))
			})
			It("should ignore a second result", func() {
				done, err := wf.UpdatePairStatus(ctx, id, common.StatusFAILED, nil, nil, false)
				Expect(err).NotTo(HaveOccurred())
				Expect(done).To(BeFalse())
			})
		})

		Context("With retry", func() {
			result := common.Result{Type: common.ResultTypePair, Status: common.StatusRETRY, Message: "error"}
			JustBeforeEach(func() {
				result.ID = id
				Expect(wf.ResultHandler(ctx, result)).To(Succeed())
			})
			It("should retry while the countdown is positive", func() {
				pair, err := wf.Pair(ctx, id)
				Expect(err).NotTo(HaveOccurred())
				Expect(pair.Status).To(Equal(common.StatusPENDING))
				Expect(pair.RetryCountDown).To(Equal(0))
				Expect(pair.Message).To(Equal("error"))
				Expect(pairQueue.messages).To(HaveLen(1))
				Expect(lastPair().ID).To(Equal(id))
			})
			It("should stop retrying when the countdown is over", func() {
				Expect(wf.ResultHandler(ctx, result)).To(Succeed())
				pair, err := wf.Pair(ctx, id)
				Expect(err).NotTo(HaveOccurred())
				Expect(pair.Status).To(Equal(common.StatusRETRY))
				Expect(pairQueue.messages).To(HaveLen(1))

				aois, err := wf.AOIs(ctx, aoi)
				Expect(err).NotTo(HaveOccurred())
				Expect(aois[0].Status).To(Equal(common.StatusRETRY))
			})
		})

		Context("With failure", func() {
			It("should fail the pair", func() {
				Expect(wf.ResultHandler(ctx, common.Result{Type: common.ResultTypePair, ID: id, Status: common.StatusFAILED, Message: "fatal"})).To(Succeed())
				pair, err := wf.Pair(ctx, id)
				Expect(err).NotTo(HaveOccurred())
				Expect(pair.Status).To(Equal(common.StatusFAILED))
				Expect(pair.Message).To(Equal("fatal"))
			})
			It("should only change the status of a failed pair if forced", func() {
				Expect(wf.ResultHandler(ctx, common.Result{Type: common.ResultTypePair, ID: id, Status: common.StatusFAILED})).To(Succeed())
				done, err := wf.UpdatePairStatus(ctx, id, common.StatusPENDING, nil, nil, false)
				Expect(err).NotTo(HaveOccurred())
				Expect(done).To(BeFalse())

				done, err = wf.UpdatePairStatus(ctx, id, common.StatusPENDING, nil, nil, true)
				Expect(err).NotTo(HaveOccurred())
				Expect(done).To(BeTrue())
				pair, err := wf.Pair(ctx, id)
				Expect(err).NotTo(HaveOccurred())
				Expect(pair.Status).To(Equal(common.StatusPENDING))
				Expect(pairQueue.messages).To(HaveLen(1))
			})
		})

		It("should refuse an unknown result type", func() {
			Expect(wf.ResultHandler(ctx, common.Result{Type: "scene", ID: id, Status: common.StatusDONE})).NotTo(Succeed())
		})

		It("should ignore an unknown pair", func() {
			done, err := wf.UpdatePairStatus(ctx, id+100, common.StatusDONE, nil, nil, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(done).To(BeFalse())
		})

		It("should update the data of the pair", func() {
			data := pairToIngest("20170828", "20170816", 0).Data
			data.OutputURI = "s3://my-bucket/int-20170828-20170816"
			Expect(wf.UpdatePairData(ctx, id, data)).To(Succeed())
			pair, err := wf.Pair(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(pair.Data.OutputURI).To(Equal(data.OutputURI))
		})
	})

	Describe("Dot", func() {
		It("should draw one edge per pair", func() {
			Expect(wf.CreateAOI(ctx, aoi)).To(Succeed())
			id, err := wf.IngestPair(ctx, aoi, pairToIngest("20170828", "20170816", 0))
			Expect(err).NotTo(HaveOccurred())
			_, err = wf.IngestPair(ctx, aoi, pairToIngest("20170816", "20170804", 0))
			Expect(err).NotTo(HaveOccurred())
			Expect(wf.ResultHandler(ctx, common.Result{Type: common.ResultTypePair, ID: id, Status: common.StatusDONE})).To(Succeed())

			var buf bytes.Buffer
			Expect(wf.Dot(ctx, aoi, &buf)).To(Succeed())
			dot := buf.String()
			Expect(dot).To(HavePrefix(`digraph "longvalley" {`))
			Expect(dot).To(ContainSubstring("d20170804 [label=\"20170804\" shape=box];"))
			Expect(dot).To(ContainSubstring("d20170816 -> d20170828"))
			Expect(dot).To(ContainSubstring("d20170804 -> d20170816"))
			Expect(strings.Count(dot, "style=dotted")).To(Equal(1))
			Expect(dot).To(HaveSuffix("}\n"))
		})
	})

	Describe("Handler", func() {
		var router http.Handler
		raw, _ := os.ReadFile(asfQueryFile)

		BeforeEach(func() {
			r := wf.NewHandler()
			wf.CatalogHandler(r)
			router = r
		})

		do := func(method, path string, body string) *httptest.ResponseRecorder {
			req := httptest.NewRequest(method, path, strings.NewReader(body))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			return w
		}

		postForm := func(path string, values url.Values) *httptest.ResponseRecorder {
			req := httptest.NewRequest("POST", path, strings.NewReader(values.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			return w
		}

		It("should manage the aois", func() {
			Expect(do("POST", "/aoi/"+aoi, "").Code).To(Equal(204))
			Expect(do("POST", "/aoi/"+aoi, "").Code).To(Equal(409))

			w := do("GET", "/aois", "")
			Expect(w.Code).To(Equal(200))
			var aois []db.AOI
			Expect(json.Unmarshal(w.Body.Bytes(), &aois)).To(Succeed())
			Expect(aois).To(HaveLen(1))

			Expect(do("DELETE", "/aoi/"+aoi, "").Code).To(Equal(204))
			Expect(do("GET", "/aois", "").Body.String()).To(Equal("[]\n"))
		})

		It("should create and retrieve a pair", func() {
			Expect(do("POST", "/aoi/"+aoi, "").Code).To(Equal(204))
			b, _ := json.Marshal(pairToIngest("20170828", "20170816", 0))
			w := do("POST", "/aoi/"+aoi+"/pair", string(b))
			Expect(w.Code).To(Equal(200))
			var created struct{ ID int }
			Expect(json.Unmarshal(w.Body.Bytes(), &created)).To(Succeed())

			w = do("GET", "/pair/"+itoa(created.ID), "")
			Expect(w.Code).To(Equal(200))
			var pair db.Pair
			Expect(json.Unmarshal(w.Body.Bytes(), &pair)).To(Succeed())
			Expect(pair.Main).To(Equal("20170828"))
			Expect(pair.Status).To(Equal(common.StatusPENDING))

			Expect(do("GET", "/pair/999", "").Code).To(Equal(404))
			Expect(do("GET", "/pair/abc", "").Code).To(Equal(400))
			Expect(do("POST", "/aoi/"+aoi+"/pair", `{"unknown":1}`).Code).To(Equal(400))

			w = do("GET", "/aoi/"+aoi, "")
			Expect(w.Code).To(Equal(200))
			Expect(w.Body.String()).To(ContainSubstring("pending: 1"))
			Expect(w.Body.String()).To(ContainSubstring("From: 20170816"))
		})

		It("should list, fail and retry the pairs", func() {
			Expect(do("POST", "/aoi/"+aoi, "").Code).To(Equal(204))
			b, _ := json.Marshal(pairToIngest("20170828", "20170816", 0))
			Expect(do("POST", "/aoi/"+aoi+"/pair", string(b)).Code).To(Equal(200))
			id := lastPair().ID

			Expect(do("GET", "/aoi/"+aoi+"/pairs/unknown", "").Code).To(Equal(400))
			var pairs []db.Pair
			Expect(json.Unmarshal(do("GET", "/aoi/"+aoi+"/pairs/PENDING", "").Body.Bytes(), &pairs)).To(Succeed())
			Expect(pairs).To(HaveLen(1))

			// Nothing to retry
			Expect(do("PUT", "/aoi/"+aoi+"/retry", "").Code).To(Equal(204))

			Expect(wf.ResultHandler(ctx, common.Result{Type: common.ResultTypePair, ID: id, Status: common.StatusRETRY})).To(Succeed())
			Expect(json.Unmarshal(do("GET", "/aoi/"+aoi+"/pairs/RETRY", "").Body.Bytes(), &pairs)).To(Succeed())
			Expect(pairs).To(HaveLen(1))

			pairQueue.Reset()
			w := do("PUT", "/aoi/"+aoi+"/retry", "")
			Expect(w.Code).To(Equal(200))
			Expect(w.Body.String()).To(Equal("{\"Pairs\":1}\n"))
			Expect(pairQueue.messages).To(HaveLen(1))

			Expect(do("PUT", "/pair/"+itoa(id)+"/fail", "").Code).To(Equal(200))
			Expect(do("PUT", "/pair/"+itoa(id)+"/retry", "").Code).To(Equal(403))
			Expect(do("PUT", "/pair/"+itoa(id)+"/force/unknown", "").Code).To(Equal(400))
			Expect(do("PUT", "/pair/"+itoa(id)+"/force/DONE", "").Code).To(Equal(200))

			w = do("GET", "/aoi/"+aoi+"/dot", "")
			Expect(w.Body.String()).To(ContainSubstring("d20170816 -> d20170828"))
		})

		Describe("Campaign", func() {
			campaign := `{"aoi":"longvalley","orbit":64,"data":{"swaths":[1,2,3]},"retry_count":2}`

			It("should create the pairs of an inventory", func() {
				w := postForm("/catalog/aoi", url.Values{"campaign": {campaign}, "scenes": {string(raw)}})
				Expect(w.Code).To(Equal(200))
				Expect(w.Body.String()).To(Equal("Processing of 2 pairs in progress (0 already exist)\n"))
				Expect(pairQueue.messages).To(HaveLen(2))

				p := lastPair()
				Expect(p.Data.Swaths).To(Equal([]int{1, 2, 3}))
				Expect(p.Data.MainScenes).NotTo(BeEmpty())
				Expect(p.Data.SecondaryScenes).NotTo(BeEmpty())

				w = postForm("/catalog/aoi", url.Values{"campaign": {campaign}, "scenes": {string(raw)}})
				Expect(w.Code).To(Equal(200))
				Expect(w.Body.String()).To(Equal("Processing of 0 pairs in progress (2 already exist)\n"))
			})

			It("should search the inventory", func() {
				scenes, err := catalog.Parse(raw)
				Expect(err).NotTo(HaveOccurred())
				provider.scenes = scenes
				w := postForm("/catalog/aoi", url.Values{"campaign": {`{"aoi":"longvalley","orbit":64,"pairs":1,"search":{"snwe":[37,38,-119,-118]},"data":{"swaths":[2]}}`}})
				Expect(w.Code).To(Equal(200))
				Expect(w.Body.String()).To(HavePrefix("Processing of 1 pairs"))
				Expect(provider.areas).To(HaveLen(1))
				Expect(provider.areas[0].RelativeOrbit).To(Equal(64))
				Expect(lastPair().IntName()).To(Equal("int-20170828-20170816"))
			})

			It("should reject an invalid campaign", func() {
				Expect(postForm("/catalog/aoi", url.Values{}).Code).To(Equal(400))
				Expect(postForm("/catalog/aoi", url.Values{"campaign": {`{"aoi":"longvalley","orbit":64}`}, "scenes": {string(raw)}}).Code).To(Equal(400))
				Expect(postForm("/catalog/aoi", url.Values{"campaign": {campaign}}).Code).To(Equal(400))
			})
		})
	})

	Describe("PairsToIngest", func() {
		It("should complete the pairs with the scenes of the inventory", func() {
			raw, err := os.ReadFile(asfQueryFile)
			Expect(err).NotTo(HaveOccurred())
			scenes, err := catalog.Parse(raw)
			Expect(err).NotTo(HaveOccurred())
			pairs, err := workflow.PairsToIngest(scenes, workflow.Campaign{AOIID: aoi, Orbit: 64, Data: common.PairAttrs{Swaths: []int{1}}, RetryCount: 3})
			Expect(err).NotTo(HaveOccurred())
			Expect(pairs).To(HaveLen(2))
			Expect(pairs[0].IntName()).To(Equal("int-20170828-20170816"))
			Expect(pairs[0].Data.MainScenes).To(HaveLen(2))
			Expect(pairs[0].RetryCount).To(Equal(3))
		})
	})
})

func itoa(i int) string {
	b, _ := json.Marshal(i)
	return string(b)
}
