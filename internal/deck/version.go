package deck

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// VersionLength is the length of the fingerprint in hex characters.
const VersionLength = 16

// Version computes the deterministic structural fingerprint of a document:
// slide count, per-slide layout identity and shape count, per-shape EMU
// geometry, and a digest of all text-run content. Formatting-only changes
// (fill color, fonts) intentionally do not move the version; any geometry
// or text change does. Callers treat the value as opaque and only compare
// it for equality.
func Version(d *Document) (string, error) {
	h := sha256.New()
	fmt.Fprintf(h, "slides=%d;", d.SlideCount())

	text := sha256.New()
	for i := 0; i < d.SlideCount(); i++ {
		s, err := d.Slide(i)
		if err != nil {
			return "", err
		}
		shapes := s.Shapes()
		fmt.Fprintf(h, "layout=%s,shapes=%d;", s.LayoutName(), len(shapes))
		// Text is digested per shape so moving a run between shapes on the
		// same slide moves the version even when geometry is unchanged.
		for j, sh := range shapes {
			if l, t, w, ht, ok := sh.Geometry(); ok {
				fmt.Fprintf(h, "%d:%d:%d:%d;", l, t, w, ht)
			} else {
				io.WriteString(h, "inherited;")
			}
			fmt.Fprintf(text, "%d/%d|%s;", i, j, sh.Text())
		}
	}
	fmt.Fprintf(h, "text=%x", text.Sum(nil))

	return hex.EncodeToString(h.Sum(nil))[:VersionLength], nil
}
