package spot

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// EmptyMessage is shown when no image is large enough.
const EmptyMessage = "We are sorry to tell you that the images on this page are too small."

const (
	classOpaque = "spotter__opaque"
	classItem   = "spotterList__li"
	classLink   = "spotterList__a"
	classWide   = "spotterList__a--wide"
	classImg    = "spotterList__img"
)

func element(tag, id, class string) *html.Node {
	n := &html.Node{Type: html.ElementNode, DataAtom: atom.Lookup([]byte(tag)), Data: tag}
	if id != "" {
		n.Attr = append(n.Attr, html.Attribute{Key: "id", Val: id})
	}
	if class != "" {
		n.Attr = append(n.Attr, html.Attribute{Key: "class", Val: class})
	}
	return n
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key && n.Attr[i].Namespace == "" {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

// BuildRoot returns the overlay skeleton: a transparent wrapper holding the
// close bar and an empty content slot.
func BuildRoot() *html.Node {
	text := element("p", "spotterClose__p", "")
	text.AppendChild(&html.Node{Type: html.TextNode, Data: "Close"})
	bar := element("div", CloseID, classOpaque)
	bar.AppendChild(text)

	root := element("div", RootID, classOpaque)
	root.AppendChild(bar)
	root.AppendChild(element("div", ContentID, ""))
	return root
}

// BuildContent renders the content slot body for col: the empty-state
// message when col has no entries, the thumbnail grid otherwise.
func BuildContent(col *Collection) *html.Node {
	if col.Len() == 0 {
		p := element("p", MsgID, "")
		p.AppendChild(&html.Node{Type: html.TextNode, Data: EmptyMessage})
		return p
	}
	ul := element("ul", ListID, classOpaque)
	col.Each(func(src string, size Size) {
		ul.AppendChild(buildItem(Layout(src, size)))
	})
	return ul
}

func buildItem(c Cell) *html.Node {
	w, h := c.Pixels()
	img := element("img", "", classImg)
	setAttr(img, "src", c.Src)
	setAttr(img, "style", "width:"+strconv.Itoa(w)+"px;height:"+strconv.Itoa(h)+"px;")

	class := classLink
	if c.Wide {
		class += " " + classWide
	}
	a := element("a", "", class)
	setAttr(a, "href", c.Src)
	setAttr(a, "download", c.Download())
	a.AppendChild(img)

	li := element("li", "", classItem)
	li.AppendChild(a)
	return li
}

// RenderHTML serializes n. Errors from the in-memory writer cannot occur.
func RenderHTML(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	_ = html.Render(&b, n)
	return b.String()
}
