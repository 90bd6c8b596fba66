package asset

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestLocalResource(t *testing.T) {
	_, thisFile, _, _ := runtime.Caller(0)
	res, err := NewResource(thisFile, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Close()

	if res.IsRemote() {
		t.Fatal("expected local resource not to be remote")
	}

	if res.Ext() != ".go" {
		t.Fatalf("expected resource extension to be .go; got %s", res.Ext())
	}
}

func TestLocalRelativeResource(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "scene.obj"), []byte("v 0 0 0"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "scene.mtl"), []byte("newmtl white"), 0644); err != nil {
		t.Fatal(err)
	}

	parent, err := NewResource(filepath.Join(dir, "scene.obj"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer parent.Close()

	child, err := NewResource("scene.mtl", parent)
	if err != nil {
		t.Fatal(err)
	}
	defer child.Close()

	data, err := io.ReadAll(child)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "newmtl white" {
		t.Fatalf("expected relative resource contents to be %q; got %q", "newmtl white", string(data))
	}
}

func TestHttpResource(t *testing.T) {
	_, thisFile, _, _ := runtime.Caller(0)
	thisDir := filepath.Dir(thisFile)

	server := httptest.NewServer(http.FileServer(http.Dir(thisDir)))
	defer server.Close()

	fetchUrl := server.URL + "/" + filepath.Base(thisFile)
	res, err := NewResource(fetchUrl, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Close()

	if !res.IsRemote() {
		t.Fatal("expected http resource to be remote")
	}

	fetchUrl = server.URL + "/file-not-found.foo"
	expError := fmt.Sprintf("resource: could not fetch '%s': status %d", fetchUrl, 404)
	_, err = NewResource(fetchUrl, nil)
	if err == nil || err.Error() != expError {
		t.Fatalf("expected to get: %s; got %v", expError, err)
	}
}

func TestRelativeResources(t *testing.T) {
	serverHits := 0
	serverFn := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serverHits++
		if r.URL.Path == "/foo/scene.obj" || r.URL.Path == "/foo/scene.mtl" {
			w.Write([]byte("OK"))
		} else {
			http.NotFound(w, r)
		}
	})
	server := httptest.NewServer(serverFn)
	defer server.Close()

	res1, err := NewResource(server.URL+"/foo/scene.obj", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer res1.Close()
	res2, err := NewResource("scene.mtl", res1)
	if err != nil {
		t.Fatal(err)
	}
	defer res2.Close()

	if serverHits != 2 {
		t.Fatalf("expected server to receive 2 requests; got %d", serverHits)
	}
}

func TestUnsupportedResourceScheme(t *testing.T) {
	expError := "resource: unsupported scheme 'gopher'"
	_, err := NewResource("gopher://digging.go", nil)
	if err == nil || err.Error() != expError {
		t.Fatalf("expected to get: %s; got %v", expError, err)
	}
}

func TestStreamResource(t *testing.T) {
	res := NewResourceFromStream("inline.obj", strings.NewReader("payload"))
	defer res.Close()

	if res.Path() != "inline.obj" {
		t.Fatalf("expected path to be inline.obj; got %s", res.Path())
	}

	data, _ := io.ReadAll(res)
	if string(data) != "payload" {
		t.Fatalf("expected stream contents to be %q; got %q", "payload", string(data))
	}
}
