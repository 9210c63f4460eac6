package log

import (
	"context"
	"reflect"
	"testing"

	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func installLogger() *observer.ObservedLogs {
	c, o := observer.New(zapcore.DebugLevel)
	setLogger(zap.New(c))
	return o
}

func testEntry(t *testing.T, e observer.LoggedEntry, flds []zapcore.Field) {
	t.Helper()
	if len(e.Context) != len(flds) {
		t.Errorf("got %d fields, expected %d", len(e.Context), len(flds))
	}
	for _, fld := range flds {
		ok := false
		for _, f := range e.Context {
			if reflect.DeepEqual(f, fld) {
				ok = true
				break
			}
		}
		if !ok {
			t.Errorf("missing field %v", fld)
		}
	}
}

func TestLogger(t *testing.T) {
	o := installLogger()
	defer resetLogger()
	ctx := context.Background()
	Logger(ctx).Info("")
	testEntry(t, o.TakeAll()[0], nil)

	ctx1 := With(ctx, "pair", "int-20180105-20171224")
	Logger(ctx1).Info("")
	testEntry(t, o.TakeAll()[0], []zapcore.Field{zap.Any("pair", "int-20180105-20171224")})

	ctx1 = With(ctx1, "product", "amplitude-cog.tif")
	Logger(ctx1).Info("")
	testEntry(t, o.TakeAll()[0], []zapcore.Field{zap.Any("pair", "int-20180105-20171224"), zap.Any("product", "amplitude-cog.tif")})

	// siblings do not share fields
	ctx2 := With(ctx, "pair", "int-20180117-20180105")
	Logger(ctx2).Info("")
	testEntry(t, o.TakeAll()[0], []zapcore.Field{zap.Any("pair", "int-20180117-20180105")})

	Logger(ctx).Info("")
	testEntry(t, o.TakeAll()[0], nil)
}
