package jobs

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/scottyhq/dinoSARaws/interface/aws"
	"gopkg.in/yaml.v3"
)

// Mount point of the data volume
const dataDir = "/mnt/data"

// process runs on the processing host as the ubuntu user: installs the tools, prepares the pair, runs topsApp and publishes the results
const processTemplate = `{{define "process" -}}
export PATH="/home/ubuntu/miniconda3/envs/isce/bin:/home/ubuntu/.local/bin:/home/ubuntu/go/bin:$PATH"
export GDAL_DATA=/home/ubuntu/miniconda3/envs/isce/share/gdal
source /home/ubuntu/ISCECONFIG
cd ` + dataDir + `
mkdir -p dems poeorb auxcal
git clone {{q .Repository}} dinoSARaws
(cd dinoSARaws && go install ./cmd/...)
{{- if .Inventory}}
inventory -load {{q .Inventory}}
{{- else}}
inventory -r {{q (snwe .ROI)}}
{{- end}}
preptopsapp -i query.geojson -p {{q .Path}} -m {{q .Main}} -s {{q .Secondary}} -n {{q (ints .Swaths)}}{{if .ROI}} -r {{q (snwe .ROI)}}{{end}}{{if .GeocodeBox}} -g {{q (snwe .GeocodeBox)}}{{end}} -auxdir ` + dataDir + `/auxcal
cd {{q .IntName}}
topsApp.py 2>&1 | tee topsApp.log
isce2aws -i {{q .IntName}}{{if .Region}} -region {{q .Region}}{{end}}
{{- if .TopicArn}}
aws sns publish{{if .Region}} --region {{q .Region}}{{end}} --topic-arn {{q .TopicArn}} --message file://topsApp.log --subject {{q (printf "%s Finished" .IntName)}}
{{- end}}
{{- end}}`

const userDataTemplate = `#!/bin/bash
# Interferogram {{.IntName}}, path {{.Path}}
# Logs in /var/log/cloud-init-output.log
mkfs -t ext4 {{.DataDevice}}
echo "{{.DataDevice}}       ` + dataDir + `   ext4    defaults,nofail 0       2" >> /etc/fstab
mkdir -p ` + dataDir + `
mount -a
chown -R ubuntu ` + dataDir + `
sudo -i -u ubuntu bash <<"EOF"
{{template "process" .}}
{{.Cleanup}}
EOF
`

const batchTemplate = `#!/bin/bash
# AWS Batch job {{.StackName}}: interferogram {{.IntName}}, path {{.Path}}
set -e
mkdir -p ` + dataDir + `
{{template "process" .}}
`

var templates = template.Must(template.New("jobs").
	Option("missingkey=error").
	Funcs(template.FuncMap{
		"q":    shellQuote,
		"ints": formatInts,
		"snwe": formatSNWE,
	}).Parse(processTemplate))

var (
	userDataTmpl = template.Must(template.Must(templates.Clone()).New("userdata").Parse(userDataTemplate))
	batchTmpl    = template.Must(template.Must(templates.Clone()).New("batch").Parse(batchTemplate))
)

type templateData struct {
	Params
	DataDevice string
	Cleanup    string
}

// shellQuote returns the value single-quoted for a shell
func shellQuote(v interface{}) string {
	return "'" + strings.ReplaceAll(fmt.Sprint(v), "'", `'\''`) + "'"
}

func formatInts(values []int) string {
	s := make([]string, len(values))
	for i, v := range values {
		s[i] = strconv.Itoa(v)
	}
	return strings.Join(s, " ")
}

func formatSNWE(box *[4]float64) string {
	if box == nil {
		return ""
	}
	s := make([]string, len(box))
	for i, v := range box {
		s[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(s, " ")
}

func render(t *template.Template, p Params, cleanup string) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, templateData{Params: p, DataDevice: aws.DataDevice, Cleanup: cleanup}); err != nil {
		return "", fmt.Errorf("render[%s]: %w", t.Name(), err)
	}
	return buf.String(), nil
}

// UserData returns the bash script run at the start of the instance of the CloudFormation stack.
// The stack is deleted at the end of the processing
func UserData(p Params) (string, error) {
	cleanup := "aws cloudformation delete-stack"
	if p.Region != "" {
		cleanup += " --region " + shellQuote(p.Region)
	}
	cleanup += " --stack-name " + shellQuote(p.StackName())
	s, err := render(userDataTmpl, p, cleanup)
	if err != nil {
		return "", fmt.Errorf("UserData: %w", err)
	}
	return s, nil
}

// InstanceUserData returns the bash script run at the start of a standalone instance.
// The instance shuts down (and terminates) at the end of the processing
func InstanceUserData(p Params) (string, error) {
	s, err := render(userDataTmpl, p, "sudo shutdown -h now")
	if err != nil {
		return "", fmt.Errorf("InstanceUserData: %w", err)
	}
	return s, nil
}

// BatchScript returns the bash script of an AWS Batch job
func BatchScript(p Params) (string, error) {
	s, err := render(batchTmpl, p, "")
	if err != nil {
		return "", fmt.Errorf("BatchScript: %w", err)
	}
	return s, nil
}

// Stack is a CloudFormation template
type Stack struct {
	AWSTemplateFormatVersion string              `yaml:"AWSTemplateFormatVersion"`
	Description              string              `yaml:"Description"`
	Resources                map[string]Resource `yaml:"Resources"`
}

// Resource of a CloudFormation template
type Resource struct {
	Type       string             `yaml:"Type"`
	Properties InstanceProperties `yaml:"Properties"`
}

// InstanceProperties are the properties of an AWS::EC2::Instance
type InstanceProperties struct {
	ImageID             string               `yaml:"ImageId"`
	InstanceType        string               `yaml:"InstanceType"`
	KeyName             string               `yaml:"KeyName,omitempty"`
	SecurityGroups      []string             `yaml:"SecurityGroups,omitempty"`
	IAMInstanceProfile  string               `yaml:"IamInstanceProfile,omitempty"`
	BlockDeviceMappings []BlockDeviceMapping `yaml:"BlockDeviceMappings"`
	UserData            map[string]string    `yaml:"UserData"`
	Tags                []Tag                `yaml:"Tags,omitempty"`
}

// BlockDeviceMapping of an instance
type BlockDeviceMapping struct {
	DeviceName string `yaml:"DeviceName"`
	Ebs        Ebs    `yaml:"Ebs"`
}

// Ebs volume
type Ebs struct {
	VolumeType          string `yaml:"VolumeType"`
	VolumeSize          int    `yaml:"VolumeSize"`
	DeleteOnTermination bool   `yaml:"DeleteOnTermination"`
}

// Tag of a resource
type Tag struct {
	Key   string `yaml:"Key"`
	Value string `yaml:"Value"`
}

// InstanceResource is the name of the processing instance in the stack
const InstanceResource = "ProcessingInstance"

// base64Function is the intrinsic function that encodes the user data
const base64Function = "Fn::Base64"

// NewStack returns the CloudFormation stack of the processing: an instance with a root and a data volume
func NewStack(p Params) (Stack, error) {
	script, err := UserData(p)
	if err != nil {
		return Stack{}, fmt.Errorf("NewStack.%w", err)
	}
	props := InstanceProperties{
		ImageID:            p.ImageID,
		InstanceType:       p.InstanceType,
		KeyName:            p.KeyName,
		IAMInstanceProfile: p.IAMProfile,
		BlockDeviceMappings: []BlockDeviceMapping{
			{DeviceName: "/dev/sda1", Ebs: Ebs{VolumeType: "gp2", VolumeSize: p.RootVolumeGB, DeleteOnTermination: true}},
			{DeviceName: aws.DataDevice, Ebs: Ebs{VolumeType: "gp2", VolumeSize: p.DataVolumeGB, DeleteOnTermination: true}},
		},
		UserData: map[string]string{base64Function: script},
		Tags:     []Tag{{Key: "Name", Value: p.StackName()}},
	}
	if p.SecurityGroup != "" {
		props.SecurityGroups = []string{p.SecurityGroup}
	}
	return Stack{
		AWSTemplateFormatVersion: "2010-09-09",
		Description:              "CloudFormation template to create interferogram: " + p.IntName(),
		Resources: map[string]Resource{
			InstanceResource: {Type: "AWS::EC2::Instance", Properties: props},
		},
	}, nil
}

// CloudFormation returns the YAML CloudFormation template of the processing
func CloudFormation(p Params) (string, error) {
	stack, err := NewStack(p)
	if err != nil {
		return "", fmt.Errorf("CloudFormation.%w", err)
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(stack); err != nil {
		return "", fmt.Errorf("CloudFormation.Encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("CloudFormation.Encode: %w", err)
	}
	return buf.String(), nil
}

// ParseCloudFormation parses a template written by CloudFormation
func ParseCloudFormation(b []byte) (Stack, error) {
	var stack Stack
	if err := yaml.Unmarshal(b, &stack); err != nil {
		return stack, fmt.Errorf("ParseCloudFormation: %w", err)
	}
	return stack, nil
}
