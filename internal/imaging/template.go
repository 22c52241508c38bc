package imaging

import (
	"context"
	"errors"
	"image"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ErrTemplateTooLarge is returned when the template does not fit inside the frame.
var ErrTemplateTooLarge = errors.New("template larger than frame")

// flatEpsilon is the variance below which a window or template is treated as flat.
const flatEpsilon = 1e-9

// Template is a grayscale search image with its zero-mean pixels precomputed.
// It is read-only after construction and safe for concurrent use.
type Template struct {
	w, h   int
	zero   []float64 // pixel minus template mean, row-major
	energy float64   // sum of squared zero-mean pixels
}

// NewTemplate prepares img for repeated matching.
func NewTemplate(img *image.Gray) *Template {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	n := w * h

	pix := make([]float64, n)
	var sum float64
	for y := 0; y < h; y++ {
		row := img.Pix[(y)*img.Stride : (y)*img.Stride+w]
		for x, v := range row {
			pix[y*w+x] = float64(v)
			sum += float64(v)
		}
	}

	t := &Template{w: w, h: h, zero: pix}
	if n == 0 {
		return t
	}
	mean := sum / float64(n)
	for i := range pix {
		pix[i] -= mean
		t.energy += pix[i] * pix[i]
	}
	return t
}

// Size returns the template dimensions.
func (t *Template) Size() image.Point {
	return image.Pt(t.w, t.h)
}

// MatchResult is the best placement of a template inside a frame.
type MatchResult struct {
	Peak float64     // normalized correlation coefficient in [-1, 1]
	At   image.Point // top-left corner of the best window, in frame coordinates
}

// Match slides the template over frame and returns the peak normalized
// cross-correlation coefficient (zero-mean, as OpenCV's TM_CCOEFF_NORMED).
// Flat windows or a flat template score 0. Rows are evaluated in parallel.
func (t *Template) Match(ctx context.Context, frame *image.Gray) (MatchResult, error) {
	b := frame.Bounds()
	fw, fh := b.Dx(), b.Dy()
	if t.w == 0 || t.h == 0 || t.w > fw || t.h > fh {
		return MatchResult{}, ErrTemplateTooLarge
	}

	sum, sq := integralImages(frame)
	n := float64(t.w * t.h)
	rows := fh - t.h + 1
	cols := fw - t.w + 1

	best := make([]MatchResult, rows)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for y := 0; y < rows; y++ {
		y := y // per-iteration copy for the goroutine (go < 1.22 loop semantics)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rowBest := MatchResult{Peak: math.Inf(-1)}
			for x := 0; x < cols; x++ {
				s := windowSum(sum, fw+1, x, y, t.w, t.h)
				s2 := windowSum(sq, fw+1, x, y, t.w, t.h)
				variance := s2 - s*s/n

				score := 0.0
				if variance > flatEpsilon && t.energy > flatEpsilon {
					score = t.correlate(frame, x, y) / math.Sqrt(variance*t.energy)
				}
				if score > rowBest.Peak {
					rowBest = MatchResult{Peak: score, At: image.Pt(b.Min.X+x, b.Min.Y+y)}
				}
			}
			best[y] = rowBest
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return MatchResult{}, err
	}

	result := best[0]
	for _, r := range best[1:] {
		if r.Peak > result.Peak {
			result = r
		}
	}
	return result, nil
}

// correlate computes sum(T'(i,j) * I(x+i, y+j)); T' is zero-mean so the window
// mean cancels out of the numerator.
func (t *Template) correlate(frame *image.Gray, x, y int) float64 {
	var acc float64
	for j := 0; j < t.h; j++ {
		off := (y+j)*frame.Stride + x
		row := frame.Pix[off : off+t.w]
		tRow := t.zero[j*t.w : (j+1)*t.w]
		for i, v := range row {
			acc += tRow[i] * float64(v)
		}
	}
	return acc
}

// integralImages returns summed-area tables of pixel values and squared values,
// each (w+1)*(h+1) with a zero first row and column.
func integralImages(img *image.Gray) ([]float64, []float64) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	stride := w + 1
	sum := make([]float64, stride*(h+1))
	sq := make([]float64, stride*(h+1))

	for y := 0; y < h; y++ {
		var rowSum, rowSq float64
		for x := 0; x < w; x++ {
			v := float64(img.Pix[y*img.Stride+x])
			rowSum += v
			rowSq += v * v
			sum[(y+1)*stride+x+1] = sum[y*stride+x+1] + rowSum
			sq[(y+1)*stride+x+1] = sq[y*stride+x+1] + rowSq
		}
	}
	return sum, sq
}

func windowSum(table []float64, stride, x, y, w, h int) float64 {
	return table[(y+h)*stride+x+w] - table[y*stride+x+w] - table[(y+h)*stride+x] + table[y*stride+x]
}

// MatchTemplate is a one-shot convenience around NewTemplate and Match.
func MatchTemplate(ctx context.Context, frame, tmpl *image.Gray) (MatchResult, error) {
	return NewTemplate(tmpl).Match(ctx, frame)
}
