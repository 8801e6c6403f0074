package fetch

import (
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/kbukum/wasmfetch/host/testutil"
)

var allKinds = []string{
	testutil.KindResponse,
	testutil.KindController,
	testutil.KindHeaders,
	testutil.KindIterator,
	testutil.KindEntry,
	testutil.KindStream,
	testutil.KindReader,
	testutil.KindBuffer,
}

func respond(resp *testutil.Response) testutil.Handler {
	return func(*testutil.Request) (*testutil.Response, error) {
		return resp, nil
	}
}

func newRequest(t *testing.T, method, url string, body io.Reader) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("http.NewRequest: %v", err)
	}
	return req
}

// eventually polls cond until it holds or a second has passed.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	if !waitUntil(cond) {
		t.Fatalf("timed out waiting for %s", what)
	}
}

// waitUntil is eventually for goroutines other than the test's own.
func waitUntil(cond func() bool) bool {
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
	return true
}

func assertNoDoubleRelease(t *testing.T, rt *testutil.Runtime) {
	t.Helper()
	for _, kind := range allKinds {
		if n := rt.DoubleReleased(kind); n != 0 {
			t.Errorf("%s released twice %d time(s)", kind, n)
		}
		if n := rt.Count(kind + ".use_after_release"); n != 0 {
			t.Errorf("%s used after release %d time(s)", kind, n)
		}
	}
}

func assertReleased(t *testing.T, rt *testutil.Runtime, kind string, want int) {
	t.Helper()
	if got := rt.Released(kind); got != want {
		t.Errorf("released %s = %d, want %d", kind, got, want)
	}
}
