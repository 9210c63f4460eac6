package service

import (
	"context"
	"fmt"
	"net/url"
	"testing"

	"github.com/aws/smithy-go"
)

func TestPermanent(t *testing.T) {
	err := fmt.Errorf("Permanent error")
	if Temporary(err) {
		t.Fail()
	}
	err = &url.Error{Err: err}
	if Temporary(err) {
		t.Fail()
	}
}

func TestTemporary(t *testing.T) {
	err := MakeTemporary(fmt.Errorf("Temporary error"))
	if !Temporary(err) {
		t.Fail()
	}
	err = fmt.Errorf("Warp: %w", err)
	if !Temporary(err) {
		t.Fail()
	}
	if !Temporary(context.Canceled) {
		t.Fail()
	}
	if !Temporary(context.DeadlineExceeded) {
		t.Fail()
	}
	err = fmt.Errorf("Warp: %w", &url.Error{Err: err})
	if !Temporary(err) {
		t.Fail()
	}
}

func TestAWSTemporary(t *testing.T) {
	err := fmt.Errorf("CreateStack: %w", &smithy.GenericAPIError{Code: "Throttling", Message: "Rate exceeded"})
	if !Temporary(err) {
		t.Error("throttling should be temporary")
	}
	err = &smithy.GenericAPIError{Code: "InternalError", Fault: smithy.FaultServer}
	if !Temporary(err) {
		t.Error("server fault should be temporary")
	}
	err = &smithy.GenericAPIError{Code: "ValidationError", Message: "Stack already exists", Fault: smithy.FaultClient}
	if Temporary(err) {
		t.Error("validation error should not be temporary")
	}
}

func TestFatal(t *testing.T) {
	err := fmt.Errorf("Warp: %w", MakeFatal(fmt.Errorf("gdal_translate: band 3 does not exist")))
	if !Fatal(err) {
		t.Fail()
	}
	if Fatal(fmt.Errorf("other")) {
		t.Fail()
	}
}

func TestMergeErrors(t *testing.T) {
	tmp := MakeTemporary(fmt.Errorf("timeout"))
	perm := fmt.Errorf("permanent")
	if err := MergeErrors(true, nil, tmp, perm); err == nil || Temporary(err) {
		t.Errorf("priority to error: expected the permanent error first, got %v", err)
	}
	if err := MergeErrors(false, tmp, nil); err != nil {
		t.Errorf("priority to success: expected nil, got %v", err)
	}
}
