package service

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestRetriable(t *testing.T) {
	i := 0
	ctx := context.Background()
	tim := time.Now()
	err := Retriable(ctx, func() error {
		i++
		return fmt.Errorf("%d", i)
	}, time.Microsecond, 3)

	if time.Since(tim) < 3*time.Microsecond {
		t.Errorf("err: excepted at least 30µs got %v", time.Since(tim))
	}

	if err == nil {
		t.Error("err: excepted 3 got nil")
	}
	if err.Error() != "3" {
		t.Error("err: excepted 3 got " + err.Error())
	}

}

func TestRetriableStopsOnPermanent(t *testing.T) {
	i := 0
	err := Retriable(context.Background(), func() error {
		i++
		if i == 1 {
			return MakeTemporary(fmt.Errorf("503 Service Unavailable"))
		}
		return fmt.Errorf("404 Not Found")
	}, time.Microsecond, 5, Temporary)
	if i != 2 {
		t.Errorf("expected 2 tries, got %d", i)
	}
	if err == nil || err.Error() != "404 Not Found" {
		t.Errorf("unexpected error %v", err)
	}
}

func TestStringSet(t *testing.T) {
	ss := StringSet{}
	ss.Push("S1A_IW_SLC__1SDV_20180105")
	ss.Push("S1A_IW_SLC__1SDV_20180105")
	ss.Push("S1B_IW_SLC__1SDV_20171230")
	if len(ss.Slice()) != 2 {
		t.Errorf("expected 2 elements, got %d", len(ss.Slice()))
	}
	if !ss.Exists("S1B_IW_SLC__1SDV_20171230") {
		t.Error("element should exist")
	}
	ss.Pop("S1B_IW_SLC__1SDV_20171230")
	if ss.Exists("S1B_IW_SLC__1SDV_20171230") {
		t.Error("element should have been removed")
	}
}
