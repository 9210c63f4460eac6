package jobs

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/scottyhq/dinoSARaws/common"
	"github.com/scottyhq/dinoSARaws/isce"
)

// Default values of the processing instance
const (
	DefaultImageID      = "ami-8deb36f5"
	DefaultInstanceType = "c5.4xlarge"
	DefaultKeyName      = "isce-key"
	DefaultSecurityGrp  = "isce-sg"
	DefaultRepository   = "https://github.com/scottyhq/dinoSARaws.git"
	DefaultRootVolumeGB = 8
	DefaultDataVolumeGB = 100
)

// Params of the processing of an interferogram
type Params struct {
	Main      string `validate:"required,datestamp"` // YYYYMMDD
	Secondary string `validate:"required,datestamp"` // YYYYMMDD
	Path      int    `validate:"min=1,max=175"`      // Relative orbit
	Swaths    []int  `validate:"required,min=1,max=3,unique,dive,min=1,max=3"`

	ROI        *[4]float64 `validate:"omitempty,snwe"` // South, North, West, East
	GeocodeBox *[4]float64 `validate:"omitempty,snwe"` // South, North, West, East
	Inventory  string      `validate:"omitempty,shellsafe"` // Uri of the inventory. If empty, the inventory is searched on the ROI

	ImageID       string `validate:"required,shellsafe"`
	InstanceType  string `validate:"required,shellsafe"`
	KeyName       string `validate:"omitempty,shellsafe"`
	SecurityGroup string `validate:"omitempty,shellsafe"`
	IAMProfile    string `validate:"omitempty,shellsafe"` // Instance profile allowed to write in S3, publish on SNS and delete the stack
	RootVolumeGB  int    `validate:"min=8"`
	DataVolumeGB  int    `validate:"min=10"`
	Repository    string `validate:"required,shellsafe"`
	TopicArn      string `validate:"omitempty,shellsafe"` // SNS topic notified at the end of the processing
	Region        string `validate:"omitempty,shellsafe"`

	Queue         string `validate:"omitempty,shellsafe"` // AWS Batch queue
	JobDefinition string `validate:"omitempty,shellsafe"` // AWS Batch job definition
}

// NewParams returns the parameters of the pair with default values
func NewParams(pair common.Pair, swaths []int) Params {
	return Params{
		Main:          pair.Main,
		Secondary:     pair.Secondary,
		Path:          pair.Path,
		Swaths:        swaths,
		ImageID:       DefaultImageID,
		InstanceType:  DefaultInstanceType,
		KeyName:       DefaultKeyName,
		SecurityGroup: DefaultSecurityGrp,
		RootVolumeGB:  DefaultRootVolumeGB,
		DataVolumeGB:  DefaultDataVolumeGB,
		Repository:    DefaultRepository,
	}
}

// WithPair returns a copy of the params for another pair
func (p Params) WithPair(pair common.Pair) Params {
	p.Main, p.Secondary, p.Path = pair.Main, pair.Secondary, pair.Path
	p.Swaths = append([]int{}, p.Swaths...)
	return p
}

// Pair of the params
func (p Params) Pair() common.Pair {
	return common.Pair{Main: p.Main, Secondary: p.Secondary, Path: p.Path}
}

// StackName is the name of the CloudFormation stack (and of the job): proc-<main>-<secondary>
func (p Params) StackName() string {
	return common.StackName(p.Main, p.Secondary)
}

// IntName is the name of the interferogram and of its bucket: int-<main>-<secondary>
func (p Params) IntName() string {
	return common.IntName(p.Main, p.Secondary)
}

// TemplateFile is the name of the CloudFormation template: proc-<main>-<secondary>.yml
func (p Params) TemplateFile() string {
	return p.StackName() + ".yml"
}

// ScriptFile is the name of the batch script: proc-<main>-<secondary>.sh
func (p Params) ScriptFile() string {
	return p.StackName() + ".sh"
}

var shellSafe = regexp.MustCompile(`^[A-Za-z0-9._:/@+=,-]*$`)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("datestamp", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(common.DateFormat, fl.Field().String())
		return err == nil && len(fl.Field().String()) == len(common.DateFormat)
	})
	v.RegisterValidation("shellsafe", func(fl validator.FieldLevel) bool {
		return shellSafe.MatchString(fl.Field().String())
	})
	v.RegisterValidation("snwe", func(fl validator.FieldLevel) bool {
		box, ok := fl.Field().Interface().([4]float64)
		return ok && isce.ValidateSNWE(&box) == nil
	})
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		p := sl.Current().Interface().(Params)
		if p.Main <= p.Secondary {
			sl.ReportError(p.Secondary, "Secondary", "Secondary", "beforemain", "")
		}
		if p.ROI == nil && p.Inventory == "" {
			sl.ReportError(p.ROI, "ROI", "ROI", "required_without_inventory", "")
		}
		if p.Queue != "" && p.JobDefinition == "" {
			sl.ReportError(p.JobDefinition, "JobDefinition", "JobDefinition", "required_with_queue", "")
		}
	}, Params{})
	return v
}

var validate = newValidator()

// Validate checks the params. All values that are written in a shell script must be shell-safe.
func (p Params) Validate() error {
	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, e := range verrs {
				msgs[i] = fmt.Sprintf("%s: invalid value %v (%s)", e.Field(), e.Value(), e.Tag())
			}
			return fmt.Errorf("invalid params: %s", strings.Join(msgs, ", "))
		}
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}

// ParseInts parses a list of integers separated by commas or spaces
func ParseInts(s string) ([]int, error) {
	var values []int
	for _, f := range splitList(s) {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("ParseInts: %w", err)
		}
		values = append(values, v)
	}
	return values, nil
}

// ParseSNWE parses a South, North, West, East box (four values separated by commas or spaces)
func ParseSNWE(s string) (*[4]float64, error) {
	fields := splitList(s)
	if len(fields) != 4 {
		return nil, fmt.Errorf("ParseSNWE: expecting S N W E, got '%s'", s)
	}
	var box [4]float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("ParseSNWE: %w", err)
		}
		box[i] = v
	}
	if err := isce.ValidateSNWE(&box); err != nil {
		return nil, fmt.Errorf("ParseSNWE: %w", err)
	}
	return &box, nil
}

func splitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' || r == '[' || r == ']' })
}
