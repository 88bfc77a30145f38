package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runRoot(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("spotter %v: %v\n%s", args, err, out.String())
	}
	return out.String()
}

func TestScanJSONFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.html")
	page := `<html><body><img src="img/cat.png" width="200" height="100"><img src="img/cat.png" width="200" height="100"><img src="dot.gif" width="1" height="1"></body></html>`
	if err := os.WriteFile(path, []byte(page), 0o644); err != nil {
		t.Fatal(err)
	}
	out := runRoot(t, "", "scan", path, "--json", "--base", "http://x/y/")
	var rep report
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if rep.Scanned != 3 || rep.Kept != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if img := rep.Images[0]; img.Src != "http://x/y/img/cat.png" || img.Download != "cat.png" || img.Width != 176 || img.Height != 88 {
		t.Fatalf("image = %+v", img)
	}
}

func TestScanStdinPrintsDocument(t *testing.T) {
	out := runRoot(t, `<p>hello</p>`, "scan")
	for _, want := range []string{`id="spotterWrapper"`, "images on this page are too small", `<style id="spotterStyle">`} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}
