package spot

// MinSize is the smallest natural width and height, in pixels, of an image
// worth showing.
const MinSize = 100

// BigEnough reports whether both natural dimensions reach MinSize.
func BigEnough(img Image) bool {
	return img.NaturalWidth >= MinSize && img.NaturalHeight >= MinSize
}

// BigEnoughAt returns a filter with a custom threshold. A threshold of zero or
// less falls back to MinSize.
func BigEnoughAt(threshold int) func(Image) bool {
	if threshold <= 0 {
		return BigEnough
	}
	return func(img Image) bool {
		return img.NaturalWidth >= threshold && img.NaturalHeight >= threshold
	}
}
