package applist

import (
	"testing"

	"github.com/nsdtx/dtx/pkg/dtx"
	"github.com/nsdtx/dtx/pkg/dtx/archive"
	"github.com/nsdtx/dtx/pkg/dtx/dtxtest"
)

func mustEncode(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := archive.Encode(v)
	if err != nil {
		t.Fatalf("archive.Encode: %v", err)
	}
	return b
}

func TestAppListSuccess(t *testing.T) {
	mock := dtxtest.New()

	objEntry, err := dtxtest.ObjectEntry(map[string]interface{}{Identifier: int64(1)})
	if err != nil {
		t.Fatalf("ObjectEntry: %v", err)
	}
	aux := dtxtest.BuildAux(objEntry)
	selBytes := mustEncode(t, "_notifyOfPublishedCapabilities:")
	mock.QueueBytes(dtxtest.BuildFrame(0, 1, 0, 1, false, dtxtest.BuildPayload(aux, selBytes, false)))

	s := dtx.NewSession(mock)
	if err := s.PerformHandshake(); err != nil {
		t.Fatalf("PerformHandshake: %v", err)
	}

	mock.QueueBytes(dtxtest.BuildFrame(1, 2, 0, 1, false, dtxtest.BuildPayload(nil, nil, false))) // channel create

	app := map[string]interface{}{"CFBundleIdentifier": "com.example.app"}
	retBytes := mustEncode(t, []interface{}{app})
	mock.QueueBytes(dtxtest.BuildFrame(1, 3, 0, 1, false, dtxtest.BuildPayload(nil, retBytes, false))) // app list reply

	apps, err := AppList(s)
	if err != nil {
		t.Fatalf("AppList: %v", err)
	}
	if len(apps) != 1 {
		t.Fatalf("got %d apps, want 1", len(apps))
	}
	v, ok := apps[0].Get("CFBundleIdentifier")
	if !ok || v != "com.example.app" {
		t.Errorf("CFBundleIdentifier = %v, want com.example.app", v)
	}
}
