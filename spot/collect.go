package spot

// Size is the natural pixel size of an image.
type Size struct {
	Width  int
	Height int
}

// Collection maps image sources to their natural size. Keys keep the order
// in which they were first seen.
type Collection struct {
	keys  []string
	sizes map[string]Size
}

// NewCollection returns an empty collection.
func NewCollection() *Collection {
	return &Collection{sizes: make(map[string]Size)}
}

// Put stores size under src. A repeated src keeps its original position but
// takes the new size: the last write wins.
func (c *Collection) Put(src string, size Size) {
	if c.sizes == nil {
		c.sizes = make(map[string]Size)
	}
	if _, ok := c.sizes[src]; !ok {
		c.keys = append(c.keys, src)
	}
	c.sizes[src] = size
}

// Get returns the size stored for src.
func (c *Collection) Get(src string) (Size, bool) {
	if c == nil {
		return Size{}, false
	}
	s, ok := c.sizes[src]
	return s, ok
}

func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.keys)
}

// Keys returns a copy of the sources in first-seen order.
func (c *Collection) Keys() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.keys...)
}

// Each calls fn for every entry in first-seen order.
func (c *Collection) Each(fn func(src string, size Size)) {
	if c == nil {
		return
	}
	for _, k := range c.keys {
		fn(k, c.sizes[k])
	}
}

// Collect folds the images accepted by keep into a Collection, collapsing
// duplicate sources. When two elements share a source but report different
// sizes, the later one in document order wins. A nil keep uses BigEnough.
func Collect(imgs []Image, keep func(Image) bool) *Collection {
	if keep == nil {
		keep = BigEnough
	}
	col := NewCollection()
	for _, img := range imgs {
		if !keep(img) {
			continue
		}
		col.Put(img.Src, Size{Width: img.NaturalWidth, Height: img.NaturalHeight})
	}
	return col
}
