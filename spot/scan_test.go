package spot

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/png"
	"strings"
	"testing"

	"golang.org/x/net/html"
)

func TestActivateSingleWideImage(t *testing.T) {
	doc := newTestDoc(t, `<img src="http://x/y/cat.png" width="200" height="100">`)
	sp := New(doc, &Options{Scheduler: &fakeScheduler{}, Logger: quietLogger()})

	res, err := sp.Activate(context.Background())
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if !res.Activated || res.Kept != 1 || len(res.Cells) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	links, _ := doc.QueryAll("#" + ListID + " > li.spotterList__li > a")
	if len(links) != 1 {
		t.Fatalf("links = %d, want 1", len(links))
	}
	a := links[0]
	if getAttr(a, "href") != "http://x/y/cat.png" || getAttr(a, "download") != "cat.png" {
		t.Fatalf("anchor attrs = %v", a.Attr)
	}
	if !strings.Contains(getAttr(a, "class"), "spotterList__a--wide") {
		t.Fatalf("wide class missing: %q", getAttr(a, "class"))
	}
	img := a.FirstChild
	if img == nil || img.Data != "img" {
		t.Fatal("anchor should wrap the thumbnail")
	}
	if got := getAttr(img, "style"); got != "width:176px;height:88px;" {
		t.Fatalf("thumbnail style = %q", got)
	}
}

func TestActivateEmptyState(t *testing.T) {
	doc := newTestDoc(t, `<img src="tiny.gif" width="16" height="16"><img src="none.png">`)
	sp := New(doc, &Options{Scheduler: &fakeScheduler{}, Logger: quietLogger()})
	if _, err := sp.Activate(context.Background()); err != nil {
		t.Fatal(err)
	}
	content, _ := doc.QueryAll("#" + ContentID + " > *")
	if len(content) != 1 || getAttr(content[0], "id") != MsgID {
		t.Fatalf("content = %d nodes, want the message only", len(content))
	}
	if items, _ := doc.QueryAll("li"); len(items) != 0 {
		t.Fatalf("grid items = %d, want 0", len(items))
	}
	if !strings.Contains(doc.HTML(), "images on this page are too small") {
		t.Fatal("empty-state message not rendered")
	}
}

func TestActivateDeduplicatesAndResolves(t *testing.T) {
	doc := newTestDoc(t, `
		<img src="/a.jpg" width="300" height="300">
		<img src="http://example.com/a.jpg" width="300" height="300">
		<img src="b.jpg" width="50" height="500">
		<img src="c.jpg" data-natural-width="120" data-natural-height="400" width="10" height="10">`)
	sp := New(doc, &Options{Scheduler: &fakeScheduler{}, Logger: quietLogger()})
	res, err := sp.Activate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Scanned != 4 || res.Kept != 2 {
		t.Fatalf("scanned=%d kept=%d, want 4/2", res.Scanned, res.Kept)
	}
	items, _ := doc.QueryAll("li.spotterList__li")
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	if res.Cells[0].Src != "http://example.com/a.jpg" || res.Cells[1].Src != "http://example.com/page/c.jpg" {
		t.Fatalf("cells = %+v", res.Cells)
	}
	if res.Cells[1].Wide {
		t.Fatal("portrait image classified wide")
	}
}

func TestActivateTwiceKeepsOneOverlay(t *testing.T) {
	doc := newTestDoc(t, `<img src="a.png" width="400" height="300">`)
	sp := New(doc, &Options{Scheduler: &fakeScheduler{}, Logger: quietLogger()})
	ctx := context.Background()
	if _, err := sp.Activate(ctx); err != nil {
		t.Fatal(err)
	}
	res, err := sp.Activate(ctx)
	if err != nil || res.Activated {
		t.Fatalf("second Activate = %+v, %v", res, err)
	}
	if countRoots(t, doc) != 1 {
		t.Fatalf("roots = %d", countRoots(t, doc))
	}
	if items, _ := doc.QueryAll("li"); len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
}

func TestActivateAfterCloseRescans(t *testing.T) {
	doc := newTestDoc(t, `<img src="a.png" width="400" height="300">`)
	sched := &fakeScheduler{}
	sp := New(doc, &Options{Scheduler: sched, Logger: quietLogger()})
	ctx := context.Background()
	_, _ = sp.Activate(ctx)
	doc.KeyUp(KeyEscape)
	sched.fire()
	res, err := sp.Activate(ctx)
	if err != nil || !res.Activated || res.Kept != 1 {
		t.Fatalf("reactivate = %+v, %v", res, err)
	}
	if items, _ := doc.QueryAll("li"); len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
}

func TestActivateDataURISize(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 120, 240))); err != nil {
		t.Fatal(err)
	}
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
	doc := newTestDoc(t, `<img src="`+uri+`" width="10" height="10">`)
	imgs, err := doc.Images(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(imgs) != 1 || imgs[0].NaturalWidth != 120 || imgs[0].NaturalHeight != 240 {
		t.Fatalf("images = %+v", imgs)
	}
	if imgs[0].Src != uri {
		t.Fatal("data URI should not be resolved against the base")
	}
}

func TestBuildContentRendersGridMarkup(t *testing.T) {
	col := NewCollection()
	col.Put("http://x/tall.png", Size{100, 200})
	got := RenderHTML(BuildContent(col))
	want := `<ul id="spotterList" class="spotter__opaque"><li class="spotterList__li">` +
		`<a class="spotterList__a" href="http://x/tall.png" download="tall.png">` +
		`<img class="spotterList__img" src="http://x/tall.png" style="width:55px;height:109px;"/></a></li></ul>`
	if got != want {
		t.Fatalf("markup mismatch\n got: %s\nwant: %s", got, want)
	}
}

func TestBuildRootStructure(t *testing.T) {
	root := BuildRoot()
	if getAttr(root, "id") != RootID || getAttr(root, "class") != "spotter__opaque" {
		t.Fatalf("root attrs = %v", root.Attr)
	}
	var ids []string
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			ids = append(ids, getAttr(c, "id"))
		}
	}
	if strings.Join(ids, ",") != CloseID+","+ContentID {
		t.Fatalf("children = %v", ids)
	}
}

func TestStylesheetCompacted(t *testing.T) {
	if strings.ContainsAny(Stylesheet, "\n\t") {
		t.Fatal("stylesheet should be compacted")
	}
	for _, want := range []string{"#spotterWrapper{", "transition:opacity 0.1s;", ".spotterList__a--wide{display:table-cell;"} {
		if !strings.Contains(Stylesheet, want) {
			t.Fatalf("stylesheet missing %q: %s", want, Stylesheet)
		}
	}
}

func TestInlineStyleUnterminated(t *testing.T) {
	tests := []struct {
		attr, prop, value, want string
	}{
		{"background-color: red", "margin", "0", "background-color:red;margin:0;"},
		{"margin: 8px", "margin", "0", "margin:0;"},
		{"", "padding", "0", "padding:0;"},
	}
	for _, tt := range tests {
		if got := styleSet(tt.attr, tt.prop, tt.value); got != tt.want {
			t.Errorf("styleSet(%q, %q) = %q, want %q", tt.attr, tt.prop, got, tt.want)
		}
	}
	if v := styleGet("color: blue; top: 3px", "top"); v != "3px" {
		t.Fatalf("styleGet = %q, want 3px", v)
	}
}

func TestStyleSetReplaces(t *testing.T) {
	got := styleSet("opacity: 0; height: 10px", "opacity", "1")
	if got != "opacity:1;height:10px;" {
		t.Fatalf("styleSet = %q", got)
	}
	if v := styleGet(got, "height"); v != "10px" {
		t.Fatalf("styleGet = %q", v)
	}
}

type failingImagesDoc struct {
	*HTMLDocument
	fail bool
}

func (d *failingImagesDoc) Images(ctx context.Context) ([]Image, error) {
	if d.fail {
		return nil, errors.New("tab crashed")
	}
	return d.HTMLDocument.Images(ctx)
}

func TestActivateListFailureUnmounts(t *testing.T) {
	doc := &failingImagesDoc{HTMLDocument: newTestDoc(t, `<img src="a.png" width="400" height="300">`), fail: true}
	sp := New(doc, &Options{Scheduler: &fakeScheduler{}, Logger: quietLogger()})
	ctx := context.Background()
	if _, err := sp.Activate(ctx); err == nil {
		t.Fatal("expected error from Images")
	}
	if sp.Overlay().State() != Absent || countRoots(t, doc.HTMLDocument) != 0 {
		t.Fatalf("state = %v roots = %d after failed scan", sp.Overlay().State(), countRoots(t, doc.HTMLDocument))
	}
	doc.fail = false
	res, err := sp.Activate(ctx)
	if err != nil || !res.Activated || res.Kept != 1 {
		t.Fatalf("retry = %+v, %v", res, err)
	}
}
