// Package recognizer finds catalog controls in screen frames by template
// matching.
//
// Matching is single-scale zero-mean normalised cross-correlation on
// grayscale images. Frames and templates are optionally box-downscaled by an
// integer factor, positions are searched on a coarse grid and the best hit is
// refined locally. Rows are split across goroutines. A control matches when
// its best score reaches the control's threshold; the reported point is the
// centre of the matched rectangle in frame coordinates.
//
// Templates are loaded once per process through a Cache that is shared by
// every session. A missing template simply never matches.
package recognizer
