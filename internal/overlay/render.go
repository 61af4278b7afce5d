package overlay

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	// background is what transparent animation pixels are composited over
	background = color.RGBA{R: 0x2b, G: 0x2b, B: 0x33, A: 0xff}

	placeholderFill = color.RGBA{R: 0xf2, G: 0xa6, B: 0x5a, A: 0xff}
	placeholderText = color.RGBA{R: 0x20, G: 0x20, B: 0x20, A: 0xff}
)

const lineHeight = 13 // basicfont.Face7x13

// BlendImage alpha-blends src onto dst with its top-left corner at (x, y),
// scaling src alpha by opacity. Pixels outside dst are clipped.
func BlendImage(dst *image.RGBA, src image.Image, x, y int, opacity float64) {
	sb := src.Bounds()
	db := dst.Bounds()

	for sy := sb.Min.Y; sy < sb.Max.Y; sy++ {
		dy := y + (sy - sb.Min.Y)
		if dy < db.Min.Y || dy >= db.Max.Y {
			continue
		}

		for sx := sb.Min.X; sx < sb.Max.X; sx++ {
			dx := x + (sx - sb.Min.X)
			if dx < db.Min.X || dx >= db.Max.X {
				continue
			}

			sr, sg, sbl, sa := src.At(sx, sy).RGBA()
			alpha := float64(sa) * opacity / 0xffff
			if alpha <= 0 {
				continue
			}

			dr, dg, dbl, da := dst.At(dx, dy).RGBA()
			dstA := float64(da) / 0xffff
			outA := alpha + dstA*(1-alpha)
			if outA <= 0 {
				continue
			}

			// channels are alpha-premultiplied on both sides
			mix := func(s, d uint32) uint8 {
				sc := float64(s) / float64(sa)
				dc := float64(d) / 0xffff
				return uint8((sc*alpha+dc*(1-alpha))*255 + 0.5)
			}

			dst.SetRGBA(dx, dy, color.RGBA{
				R: mix(sr, dr),
				G: mix(sg, dg),
				B: mix(sbl, dbl),
				A: uint8(outA*255 + 0.5),
			})
		}
	}
}

// compose flattens a frame onto the opaque overlay background
func compose(frame *image.RGBA) *image.RGBA {
	b := frame.Bounds()
	out := image.NewRGBA(image.Rectangle{Max: b.Size()})
	draw.Draw(out, out.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)
	draw.Draw(out, out.Bounds(), frame, b.Min, draw.Over)
	return out
}

// renderPlaceholder draws a filled square with the label and a close hint
// centered in it.
func renderPlaceholder(size int, label string) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(placeholderFill), image.Point{}, draw.Src)

	lines := []string{label, "(Esc to close)"}
	top := (size - len(lines)*lineHeight) / 2
	for i, line := range lines {
		drawLabel(img, line, top+i*lineHeight, placeholderText)
	}
	return img
}

// drawLabel renders text horizontally centered with its top edge at y
func drawLabel(dst *image.RGBA, text string, y int, c color.RGBA) {
	if text == "" {
		return
	}

	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil()

	textImg := image.NewRGBA(image.Rect(0, 0, width, lineHeight))
	d := &font.Drawer{
		Dst:  textImg,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.Point26_6{Y: fixed.I(face.Ascent)},
	}
	d.DrawString(text)

	x := (dst.Bounds().Dx() - width) / 2
	BlendImage(dst, textImg, x, y, 1.0)
}
