package recognizer

import (
	"image"
	"math"
)

// plane is a single-channel float image in row-major order.
type plane struct {
	w, h int
	pix  []float32
}

// grayPlane converts img to luma. The common frame types read their pixel
// buffers directly; anything else goes through the color model.
func grayPlane(img image.Image) *plane {
	b := img.Bounds()
	p := &plane{w: b.Dx(), h: b.Dy(), pix: make([]float32, b.Dx()*b.Dy())}

	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < p.h; y++ {
			row := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):]
			for x := 0; x < p.w; x++ {
				p.pix[y*p.w+x] = float32(row[x])
			}
		}
	case *image.RGBA:
		for y := 0; y < p.h; y++ {
			row := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):]
			for x := 0; x < p.w; x++ {
				i := x * 4
				p.pix[y*p.w+x] = luma(row[i], row[i+1], row[i+2])
			}
		}
	case *image.NRGBA:
		for y := 0; y < p.h; y++ {
			row := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):]
			for x := 0; x < p.w; x++ {
				i := x * 4
				p.pix[y*p.w+x] = luma(row[i], row[i+1], row[i+2])
			}
		}
	default:
		for y := 0; y < p.h; y++ {
			for x := 0; x < p.w; x++ {
				r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
				p.pix[y*p.w+x] = luma(uint8(r>>8), uint8(g>>8), uint8(bl>>8))
			}
		}
	}
	return p
}

func luma(r, g, b uint8) float32 {
	return (299*float32(r) + 587*float32(g) + 114*float32(b)) / 1000
}

// downscale box-averages s×s blocks. Trailing rows and columns that do not
// fill a block are dropped.
func (p *plane) downscale(s int) *plane {
	if s <= 1 {
		return p
	}
	out := &plane{w: p.w / s, h: p.h / s}
	out.pix = make([]float32, out.w*out.h)
	area := float32(s * s)
	for y := 0; y < out.h; y++ {
		for x := 0; x < out.w; x++ {
			var sum float32
			for dy := 0; dy < s; dy++ {
				row := (y*s + dy) * p.w
				for dx := 0; dx < s; dx++ {
					sum += p.pix[row+x*s+dx]
				}
			}
			out.pix[y*out.w+x] = sum / area
		}
	}
	return out
}

// integral holds summed-area tables of values and squared values, padded
// with a zero row and column.
type integral struct {
	stride int
	sum    []float64
	sq     []float64
}

func newIntegral(p *plane) *integral {
	stride := p.w + 1
	in := &integral{
		stride: stride,
		sum:    make([]float64, stride*(p.h+1)),
		sq:     make([]float64, stride*(p.h+1)),
	}
	for y := 0; y < p.h; y++ {
		var rowSum, rowSq float64
		for x := 0; x < p.w; x++ {
			v := float64(p.pix[y*p.w+x])
			rowSum += v
			rowSq += v * v
			i := (y+1)*stride + x + 1
			in.sum[i] = in.sum[i-stride] + rowSum
			in.sq[i] = in.sq[i-stride] + rowSq
		}
	}
	return in
}

// window returns the sum and squared sum of the w×h block at (x, y).
func (in *integral) window(x, y, w, h int) (sum, sq float64) {
	a := y*in.stride + x
	b := a + w
	c := (y+h)*in.stride + x
	d := c + w
	return in.sum[d] - in.sum[b] - in.sum[c] + in.sum[a],
		in.sq[d] - in.sq[b] - in.sq[c] + in.sq[a]
}

// zeroMean subtracts the mean from every pixel and returns the L2 norm of
// the result.
func (p *plane) zeroMean() float64 {
	var sum float64
	for _, v := range p.pix {
		sum += float64(v)
	}
	mean := float32(sum / float64(len(p.pix)))
	var sq float64
	for i, v := range p.pix {
		d := v - mean
		p.pix[i] = d
		sq += float64(d) * float64(d)
	}
	return math.Sqrt(sq)
}
