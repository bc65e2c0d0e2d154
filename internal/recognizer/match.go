package recognizer

import (
	"context"
	"image"
	"math"

	"golang.org/x/sync/errgroup"
)

// minScaledSide is the smallest template side kept after downscaling.
// Smaller templates are matched at full resolution.
const minScaledSide = 6

// framePlanes is a frame prepared for matching at one scale.
type framePlanes struct {
	scale int
	p     *plane
	in    *integral
}

func prepareFrame(img image.Image, scale int) *framePlanes {
	p := grayPlane(img).downscale(scale)
	return &framePlanes{scale: scale, p: p, in: newIntegral(p)}
}

// hit is a scored position in scaled coordinates.
type hit struct {
	x, y  int
	score float64
}

func (h hit) better(o hit) bool {
	if h.score != o.score {
		return h.score > o.score
	}
	if h.y != o.y {
		return h.y < o.y
	}
	return h.x < o.x
}

// matcher runs zero-mean normalised cross-correlation (the same score as
// OpenCV's TM_CCOEFF_NORMED). Positions are searched on a coarse grid first,
// then the neighbourhood of the best coarse hit is searched exhaustively.
type matcher struct {
	step    int
	workers int
}

// match returns the best top-left position of t in f and its score.
// ok is false when the template does not fit in the frame.
func (m matcher) match(ctx context.Context, f *framePlanes, t *Template) (hit, bool, error) {
	tp := t.scaled
	maxX, maxY := f.p.w-tp.w, f.p.h-tp.h
	if maxX < 0 || maxY < 0 || tp.w == 0 || tp.h == 0 {
		return hit{}, false, nil
	}

	step := max(m.step, 1)
	rows := maxY/step + 1
	workers := min(max(m.workers, 1), rows)

	bands := make([]hit, workers)
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			best := hit{score: math.Inf(-1)}
			for r := w; r < rows; r += workers {
				if err := gctx.Err(); err != nil {
					return err
				}
				y := r * step
				for x := 0; x <= maxX; x += step {
					if h := (hit{x: x, y: y, score: score(f, t, x, y)}); h.better(best) {
						best = h
					}
				}
			}
			bands[w] = best
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return hit{}, false, err
	}

	best := bands[0]
	for _, b := range bands[1:] {
		if b.better(best) {
			best = b
		}
	}
	if step == 1 {
		return best, true, nil
	}

	coarse := best
	for y := max(coarse.y-step+1, 0); y <= min(coarse.y+step-1, maxY); y++ {
		for x := max(coarse.x-step+1, 0); x <= min(coarse.x+step-1, maxX); x++ {
			if h := (hit{x: x, y: y, score: score(f, t, x, y)}); h.better(best) {
				best = h
			}
		}
	}
	return best, true, nil
}

// score is the correlation coefficient of t placed at (x, y). Flat regions
// (zero variance on either side) score 0.
func score(f *framePlanes, t *Template, x, y int) float64 {
	tp := t.scaled
	n := float64(tp.w * tp.h)
	sum, sq := f.in.window(x, y, tp.w, tp.h)
	variance := sq - sum*sum/n
	if variance <= 1e-9 || t.norm == 0 {
		return 0
	}

	var cross float64
	for ty := 0; ty < tp.h; ty++ {
		frow := f.p.pix[(y+ty)*f.p.w+x:]
		trow := tp.pix[ty*tp.w : (ty+1)*tp.w]
		var acc float32
		for tx, tv := range trow {
			acc += frow[tx] * tv
		}
		cross += float64(acc)
	}

	s := cross / (math.Sqrt(variance) * t.norm)
	return max(-1, min(1, s))
}
