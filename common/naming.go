package common

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

//go:generate go run github.com/dmarkham/enumer -json -type FileKind -trimprefix FileKind

// FileKind defines the kind of Sentinel-1 file
type FileKind int

const (
	FileKindUnknown FileKind = iota
	FileKindSLC              // MMM_BB_TTTR_LFPP_YYYYMMDDTHHMMSS_YYYYMMDDTHHMMSS_OOOOOO_DDDDDD_CCCC.SAFE
	FileKindPOEORB           // MMM_OPER_AUX_POEORB_OPOD_YYYYMMDDTHHMMSS_VYYYYMMDDTHHMMSS_YYYYMMDDTHHMMSS.EOF
	FileKindRESORB           // MMM_OPER_AUX_RESORB_OPOD_YYYYMMDDTHHMMSS_VYYYYMMDDTHHMMSS_YYYYMMDDTHHMMSS.EOF
	FileKindAUXCAL           // MMM_AUX_CAL_VYYYYMMDDTHHMMSS_GYYYYMMDDTHHMMSS.SAFE
)

const (
	DateFormat = "20060102"
	// DateDisplayFormat is the format of the dates in the inventory summaries
	DateDisplayFormat = "2006-01-02"
)

var (
	slcRegexp    = regexp.MustCompile(`^S1[AB]_(IW|EW|SM|WV|S\d)_SLC_`)
	orbitRegexp  = regexp.MustCompile(`^S1[AB]_OPER_AUX_(POE|RES)ORB_`)
	auxCalRegexp = regexp.MustCompile(`^S1[AB]_AUX_CAL_`)
	intRegexp    = regexp.MustCompile(`^int-(\d{8})-(\d{8})$`)
)

// GetFileKind returns the kind of file from its name
func GetFileKind(name string) FileKind {
	switch {
	case slcRegexp.MatchString(name):
		return FileKindSLC
	case orbitRegexp.MatchString(name):
		if name[13:16] == "POE" {
			return FileKindPOEORB
		}
		return FileKindRESORB
	case auxCalRegexp.MatchString(name):
		return FileKindAUXCAL
	}
	return FileKindUnknown
}

// GetDateFromProductId returns the acquisition date of a SLC or the first day of validity of an orbit file
func GetDateFromProductId(name string) (time.Time, error) {
	format, err := Info(name)
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(DateFormat, format["DATE"])
}

// Info parses the name of a Sentinel-1 file and returns its components
func Info(name string) (map[string]string, error) {
	switch GetFileKind(name) {
	case FileKindSLC:
		if len(name) < len("MMM_BB_TTTR_LFPP_YYYYMMDDTHHMMSS_YYYYMMDDTHHMMSS_OOOOOO_DDDDDD_CCCC") {
			return nil, fmt.Errorf("invalid Sentinel1 file name: %s", name)
		}
		return map[string]string{
			"SCENE":            name,
			"MISSION_ID":       name[0:3],
			"MISSION_VERSION":  name[2:3],
			"MODE":             name[4:6],
			"PRODUCT_TYPE":     name[7:10],
			"RESOLUTION":       name[10:11],
			"PROCESSING_LEVEL": name[12:13],
			"PRODUCT_CLASS":    name[13:14],
			"POLARISATION":     name[14:16],
			"DATE":             name[17:25],
			"YEAR":             name[17:21],
			"MONTH":            name[21:23],
			"DAY":              name[23:25],
			"TIME":             name[26:32],
			"HOUR":             name[26:28],
			"MINUTE":           name[28:30],
			"SECOND":           name[30:32],
			"ORBIT":            name[49:55],
			"MISSION":          name[56:62],
			"UNIQUE_ID":        name[63:67],
		}, nil
	case FileKindPOEORB, FileKindRESORB:
		if len(name) < len("MMM_OPER_AUX_POEORB_OPOD_YYYYMMDDTHHMMSS_VYYYYMMDDTHHMMSS_YYYYMMDDTHHMMSS") {
			return nil, fmt.Errorf("invalid orbit file name: %s", name)
		}
		return map[string]string{
			"SCENE":           name,
			"MISSION_ID":      name[0:3],
			"MISSION_VERSION": name[2:3],
			"ORBIT_TYPE":      name[13:19],
			"PRODUCTION_DATE": name[25:33],
			"DATE":            name[42:50],
			"YEAR":            name[42:46],
			"MONTH":           name[46:48],
			"DAY":             name[48:50],
			"VALIDITY_START":  name[42:57],
			"VALIDITY_STOP":   name[58:73],
		}, nil
	case FileKindAUXCAL:
		if len(name) < len("MMM_AUX_CAL_VYYYYMMDDTHHMMSS_GYYYYMMDDTHHMMSS") {
			return nil, fmt.Errorf("invalid aux cal file name: %s", name)
		}
		return map[string]string{
			"SCENE":           name,
			"MISSION_ID":      name[0:3],
			"MISSION_VERSION": name[2:3],
			"DATE":            name[13:21],
			"YEAR":            name[13:17],
			"MONTH":           name[17:19],
			"DAY":             name[19:21],
			"VALIDITY_START":  name[13:28],
			"GENERATION_DATE": name[30:38],
		}, nil
	}
	return nil, fmt.Errorf("Info: not a Sentinel-1 file: %s", name)
}

// FormatBrackets replaces in <str> all {keys} of <info> by the corresponding value
// keys must be one of the keys returned by Info
func FormatBrackets(str string, infos ...map[string]string) string {
	for _, info := range infos {
		for k, v := range info {
			str = strings.ReplaceAll(str, "{"+k+"}", v)
		}
	}
	return str
}

// IntName returns the name of the interferogram of main and secondary dates (YYYYMMDD)
func IntName(main, secondary string) string {
	return fmt.Sprintf("int-%s-%s", main, secondary)
}

// ParseIntName returns the main and secondary dates of an interferogram name
func ParseIntName(intname string) (string, string, error) {
	m := intRegexp.FindStringSubmatch(intname)
	if m == nil {
		return "", "", fmt.Errorf("invalid interferogram name: %s (expecting int-YYYYMMDD-YYYYMMDD)", intname)
	}
	return m[1], m[2], nil
}

// StackName returns the name of the processing stack of the pair
func StackName(main, secondary string) string {
	return fmt.Sprintf("proc-%s-%s", main, secondary)
}
