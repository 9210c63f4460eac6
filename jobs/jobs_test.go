package jobs_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"
	"github.com/scottyhq/dinoSARaws/common"
	"github.com/scottyhq/dinoSARaws/interface/aws"
	"github.com/scottyhq/dinoSARaws/jobs"
)

func testParams() jobs.Params {
	p := jobs.NewParams(common.Pair{Main: "20170927", Secondary: "20170915", Path: 115}, []int{2})
	p.ROI = &[4]float64{44.0, 44.5, -122.0, -121.5}
	p.GeocodeBox = &[4]float64{44.1, 44.4, -121.9, -121.6}
	p.TopicArn = "arn:aws:sns:us-west-2:123456789012:email-me"
	p.Region = "us-west-2"
	return p
}

// verbatim returns the rendered values of the params that must appear in the scripts
func verbatim(p jobs.Params) []string {
	return []string{
		"'" + p.Main + "'",
		"'" + p.Secondary + "'",
		fmt.Sprintf("'%d'", p.Path),
		"'2'",
		"'44 44.5 -122 -121.5'",
		"'44.1 44.4 -121.9 -121.6'",
		"'" + p.TopicArn + "'",
		"'" + p.Repository + "'",
		p.IntName(),
	}
}

var _ = Describe("Params", func() {
	It("should accept the default params", func() {
		Expect(testParams().Validate()).To(Succeed())
	})

	It("should name the stack and the interferogram after the dates", func() {
		p := testParams()
		Expect(p.StackName()).To(Equal("proc-20170927-20170915"))
		Expect(p.IntName()).To(Equal("int-20170927-20170915"))
		Expect(p.TemplateFile()).To(Equal("proc-20170927-20170915.yml"))
		Expect(p.ScriptFile()).To(Equal("proc-20170927-20170915.sh"))
		Expect(p.Pair()).To(Equal(common.Pair{Main: "20170927", Secondary: "20170915", Path: 115}))
	})

	DescribeTable("should reject invalid params",
		func(modify func(p *jobs.Params)) {
			p := testParams()
			modify(&p)
			Expect(p.Validate()).NotTo(Succeed())
		},
		Entry("invalid date", func(p *jobs.Params) { p.Main = "2017-09-27" }),
		Entry("invalid day", func(p *jobs.Params) { p.Secondary = "20170935" }),
		Entry("main before secondary", func(p *jobs.Params) { p.Main, p.Secondary = p.Secondary, p.Main }),
		Entry("same dates", func(p *jobs.Params) { p.Secondary = p.Main }),
		Entry("path 0", func(p *jobs.Params) { p.Path = 0 }),
		Entry("path 176", func(p *jobs.Params) { p.Path = 176 }),
		Entry("no swath", func(p *jobs.Params) { p.Swaths = nil }),
		Entry("swath 4", func(p *jobs.Params) { p.Swaths = []int{1, 4} }),
		Entry("duplicated swaths", func(p *jobs.Params) { p.Swaths = []int{2, 2} }),
		Entry("too many swaths", func(p *jobs.Params) { p.Swaths = []int{1, 2, 3, 1} }),
		Entry("S>N", func(p *jobs.Params) { p.ROI = &[4]float64{44.5, 44.0, -122.0, -121.5} }),
		Entry("W>E", func(p *jobs.Params) { p.GeocodeBox = &[4]float64{44.0, 44.5, -121.5, -122.0} }),
		Entry("no ROI nor inventory", func(p *jobs.Params) { p.ROI = nil }),
		Entry("unsafe instance type", func(p *jobs.Params) { p.InstanceType = "c5.large; rm -rf /" }),
		Entry("unsafe key", func(p *jobs.Params) { p.KeyName = "key'name" }),
		Entry("unsafe topic", func(p *jobs.Params) { p.TopicArn = "$(whoami)" }),
		Entry("unsafe repository", func(p *jobs.Params) { p.Repository = "https://x.org/a b" }),
		Entry("queue without definition", func(p *jobs.Params) { p.Queue = "HighPriority" }),
		Entry("small data volume", func(p *jobs.Params) { p.DataVolumeGB = 1 }),
	)

	It("should parse lists", func() {
		swaths, err := jobs.ParseInts("1,2 3")
		Expect(err).NotTo(HaveOccurred())
		Expect(swaths).To(Equal([]int{1, 2, 3}))

		box, err := jobs.ParseSNWE("44.0 44.5 -122.0 -121.5")
		Expect(err).NotTo(HaveOccurred())
		Expect(*box).To(Equal([4]float64{44.0, 44.5, -122.0, -121.5}))

		box, err = jobs.ParseSNWE("[44.0, 44.5, -122.0, -121.5]")
		Expect(err).NotTo(HaveOccurred())
		Expect(box[3]).To(Equal(-121.5))

		_, err = jobs.ParseSNWE("44.0 44.5 -122.0")
		Expect(err).To(HaveOccurred())
		_, err = jobs.ParseSNWE("44.5 44.0 -122.0 -121.5")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Templates", func() {
	var p jobs.Params

	BeforeEach(func() {
		p = testParams()
	})

	It("should render the user data with every parameter", func() {
		script, err := jobs.UserData(p)
		Expect(err).NotTo(HaveOccurred())
		for _, v := range verbatim(p) {
			Expect(script).To(ContainSubstring(v))
		}
		Expect(script).NotTo(ContainSubstring("{{"))
		Expect(script).NotTo(ContainSubstring("<no value>"))
		Expect(script).To(HavePrefix("#!/bin/bash\n"))
		Expect(script).To(ContainSubstring("mkfs -t ext4 " + aws.DataDevice))
		Expect(script).To(ContainSubstring("preptopsapp -i query.geojson -p '115' -m '20170927' -s '20170915' -n '2' -r '44 44.5 -122 -121.5' -g '44.1 44.4 -121.9 -121.6'"))
		Expect(script).To(ContainSubstring("topsApp.py 2>&1 | tee topsApp.log"))
		Expect(script).To(ContainSubstring("aws cloudformation delete-stack --region 'us-west-2' --stack-name 'proc-20170927-20170915'"))
		Expect(strings.Count(script, "EOF")).To(Equal(2))
	})

	It("should search the inventory if none is given", func() {
		script, err := jobs.UserData(p)
		Expect(err).NotTo(HaveOccurred())
		Expect(script).To(ContainSubstring("inventory -r '44 44.5 -122 -121.5'"))

		p.Inventory = "s3://my-bucket/query.geojson"
		script, err = jobs.UserData(p)
		Expect(err).NotTo(HaveOccurred())
		Expect(script).To(ContainSubstring("inventory -load 's3://my-bucket/query.geojson'"))
		Expect(script).NotTo(ContainSubstring("inventory -r"))
	})

	It("should not notify without topic", func() {
		p.TopicArn = ""
		script, err := jobs.UserData(p)
		Expect(err).NotTo(HaveOccurred())
		Expect(script).NotTo(ContainSubstring("sns publish"))
	})

	It("should shut down a standalone instance", func() {
		script, err := jobs.InstanceUserData(p)
		Expect(err).NotTo(HaveOccurred())
		Expect(script).To(ContainSubstring("shutdown -h now"))
		Expect(script).NotTo(ContainSubstring("delete-stack"))
	})

	It("should render the batch script", func() {
		script, err := jobs.BatchScript(p)
		Expect(err).NotTo(HaveOccurred())
		for _, v := range verbatim(p) {
			Expect(script).To(ContainSubstring(v))
		}
		Expect(script).NotTo(ContainSubstring("mkfs"))
		Expect(script).NotTo(ContainSubstring("delete-stack"))
		Expect(script).NotTo(ContainSubstring("{{"))
	})

	It("should not render invalid params", func() {
		p.Path = 0
		_, err := jobs.UserData(p)
		Expect(err).To(HaveOccurred())
		_, err = jobs.BatchScript(p)
		Expect(err).To(HaveOccurred())
		_, err = jobs.CloudFormation(p)
		Expect(err).To(HaveOccurred())
	})

	It("should render the CloudFormation template", func() {
		body, err := jobs.CloudFormation(p)
		Expect(err).NotTo(HaveOccurred())
		Expect(body).To(HavePrefix("AWSTemplateFormatVersion:"))

		stack, err := jobs.ParseCloudFormation([]byte(body))
		Expect(err).NotTo(HaveOccurred())
		Expect(stack.Description).To(ContainSubstring("int-20170927-20170915"))
		Expect(stack.Resources).To(HaveKey(jobs.InstanceResource))
		instance := stack.Resources[jobs.InstanceResource]
		Expect(instance.Type).To(Equal("AWS::EC2::Instance"))
		Expect(instance.Properties.ImageID).To(Equal(jobs.DefaultImageID))
		Expect(instance.Properties.InstanceType).To(Equal(jobs.DefaultInstanceType))
		Expect(instance.Properties.SecurityGroups).To(Equal([]string{jobs.DefaultSecurityGrp}))
		Expect(instance.Properties.BlockDeviceMappings).To(HaveLen(2))
		Expect(instance.Properties.BlockDeviceMappings[0].Ebs.VolumeSize).To(Equal(jobs.DefaultRootVolumeGB))
		Expect(instance.Properties.BlockDeviceMappings[1].DeviceName).To(Equal(aws.DataDevice))
		Expect(instance.Properties.BlockDeviceMappings[1].Ebs.VolumeType).To(Equal("gp2"))

		userData, err := jobs.UserData(p)
		Expect(err).NotTo(HaveOccurred())
		Expect(instance.Properties.UserData).To(Equal(map[string]string{"Fn::Base64": userData}))
	})
})

type fakeStacks struct {
	name, body string
	wait       time.Duration
}

func (f *fakeStacks) CreateStack(ctx context.Context, name, templateBody string, wait time.Duration) (string, error) {
	f.name, f.body, f.wait = name, templateBody, wait
	return "stack-" + name, nil
}

type fakeInstances struct {
	instances []aws.Instance
}

func (f *fakeInstances) RunInstance(ctx context.Context, inst aws.Instance) (string, error) {
	f.instances = append(f.instances, inst)
	return fmt.Sprintf("i-%d", len(f.instances)), nil
}

type fakeBatch struct {
	jobs    []aws.Job
	buckets []string
	uploads map[string]string
}

func (f *fakeBatch) SubmitJob(ctx context.Context, job aws.Job) (string, error) {
	f.jobs = append(f.jobs, job)
	return "job-" + job.Name, nil
}

func (f *fakeBatch) MakeBucket(ctx context.Context, bucket string) error {
	f.buckets = append(f.buckets, bucket)
	return nil
}

func (f *fakeBatch) UploadFile(ctx context.Context, file, bucket, key string) error {
	b, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	if f.uploads == nil {
		f.uploads = map[string]string{}
	}
	f.uploads["s3://"+bucket+"/"+key] = string(b)
	return nil
}

type failingSubmitter struct {
	after int
	calls int
}

func (f *failingSubmitter) Submit(ctx context.Context, p jobs.Params) (string, error) {
	f.calls++
	if f.calls > f.after {
		return "", fmt.Errorf("quota exceeded")
	}
	return p.StackName(), nil
}

var _ = Describe("Submitters", func() {
	var (
		ctx = context.Background()
		p   jobs.Params
	)

	BeforeEach(func() {
		p = testParams()
	})

	It("should write and print the template", func() {
		dir := tempDir()
		var out bytes.Buffer
		file, err := jobs.PrintSubmitter{Dir: dir, Out: &out}.Submit(ctx, p)
		Expect(err).NotTo(HaveOccurred())
		Expect(file).To(Equal(filepath.Join(dir, "proc-20170927-20170915.yml")))
		Expect(out.String()).To(Equal("aws cloudformation create-stack --stack-name proc-20170927-20170915 --template-body file://" + file + "\n"))
		b, err := os.ReadFile(file)
		Expect(err).NotTo(HaveOccurred())
		expected, _ := jobs.CloudFormation(p)
		Expect(string(b)).To(Equal(expected))
	})

	It("should create a stack", func() {
		stacks := &fakeStacks{}
		id, err := jobs.CloudFormationSubmitter{Client: stacks, Wait: time.Minute}.Submit(ctx, p)
		Expect(err).NotTo(HaveOccurred())
		Expect(id).To(Equal("stack-proc-20170927-20170915"))
		Expect(stacks.wait).To(Equal(time.Minute))
		expected, _ := jobs.CloudFormation(p)
		Expect(stacks.body).To(Equal(expected))
	})

	It("should launch an instance", func() {
		instances := &fakeInstances{}
		id, err := jobs.EC2Submitter{Client: instances, Spot: true}.Submit(ctx, p)
		Expect(err).NotTo(HaveOccurred())
		Expect(id).To(Equal("i-1"))
		inst := instances.instances[0]
		Expect(inst.Name).To(Equal("proc-20170927-20170915"))
		Expect(inst.Spot).To(BeTrue())
		Expect(inst.DataVolumeGB).To(BeEquivalentTo(jobs.DefaultDataVolumeGB))
		script, err := base64.StdEncoding.DecodeString(inst.UserData)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(script)).To(ContainSubstring("shutdown -h now"))
	})

	It("should upload the script and submit a batch job", func() {
		fake := &fakeBatch{}
		p.Queue, p.JobDefinition = "HighPriority", "dinosar"
		id, err := jobs.BatchSubmitter{Storage: fake, Batch: fake, Dir: tempDir()}.Submit(ctx, p)
		Expect(err).NotTo(HaveOccurred())
		Expect(id).To(Equal("job-proc-20170927-20170915"))
		Expect(fake.buckets).To(Equal([]string{"int-20170927-20170915"}))
		script, _ := jobs.BatchScript(p)
		Expect(fake.uploads).To(HaveKeyWithValue("s3://int-20170927-20170915/proc-20170927-20170915.sh", script))
		Expect(fake.jobs[0].Queue).To(Equal("HighPriority"))
		Expect(fake.jobs[0].Definition).To(Equal("dinosar"))
		Expect(strings.Join(fake.jobs[0].Command, " ")).To(ContainSubstring("s3://int-20170927-20170915/proc-20170927-20170915.sh"))
	})

	It("should require a queue for batch jobs", func() {
		fake := &fakeBatch{}
		_, err := jobs.BatchSubmitter{Storage: fake, Batch: fake, Dir: tempDir()}.Submit(ctx, p)
		Expect(err).To(HaveOccurred())
		Expect(fake.buckets).To(BeEmpty())
	})

	It("should submit all the pairs until the first error", func() {
		pairs := []common.Pair{
			{Main: "20170927", Secondary: "20170915", Path: 115},
			{Main: "20170915", Secondary: "20170903", Path: 115},
			{Main: "20170903", Secondary: "20170812", Path: 115},
		}
		var params []jobs.Params
		for _, pair := range pairs {
			params = append(params, p.WithPair(pair))
		}
		ids, err := jobs.SubmitAll(ctx, &failingSubmitter{after: 2}, params)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("int-20170903-20170812"))
		Expect(ids).To(Equal([]string{"proc-20170927-20170915", "proc-20170915-20170903"}))
	})
})
