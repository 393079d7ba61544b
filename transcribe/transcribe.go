// Package transcribe turns photographed or drawn formulas into the labelled
// text that decode.Decode reads. It sits outside the equivalence core: its
// output is untrusted text and is only ever decoded and parsed, never run.
package transcribe

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrInvalidDataURL is returned for image inputs that are not data URLs.
	ErrInvalidDataURL = errors.New("transcribe: invalid data URL")
	// ErrNoTranscriber is returned when image checks are requested but no
	// vision backend is configured.
	ErrNoTranscriber = errors.New("transcribe: no transcriber configured")
)

// Prompt instructs the vision model to answer in the three-line format.
const Prompt = `Transcribe the single mathematical expression in this image.
Answer with exactly three lines and nothing else:
SYMPY: <the expression in Python/SymPy syntax, using ** for powers and * for every multiplication>
LATEX: <the expression in LaTeX>
VAR: <the single-letter variable of the expression>
Use only the functions sin cos tan cot sec csc asin acos atan sinh cosh tanh asinh acosh atanh ln log exp sqrt abs and the constants pi and E.`

// Transcriber converts one image into free text.
type Transcriber interface {
	Transcribe(ctx context.Context, imageURL string) (string, error)
}

// Pair holds the raw transcriptions of the function and derivative images.
type Pair struct {
	F string `json:"f"`
	G string `json:"g"`
}

// checkImage accepts only data URLs that declare an image media type.
func checkImage(s string) error {
	d, err := ParseDataURL(s)
	if err != nil {
		return err
	}
	if !d.IsImage() {
		return fmt.Errorf("%w: media type %q is not an image", ErrInvalidDataURL, d.MIME)
	}
	return nil
}

// TranscribePair validates both images and transcribes them concurrently.
// The first failure cancels the other call.
func TranscribePair(ctx context.Context, t Transcriber, fImage, gImage string) (Pair, error) {
	if t == nil {
		return Pair{}, ErrNoTranscriber
	}
	if err := checkImage(fImage); err != nil {
		return Pair{}, fmt.Errorf("f image: %w", err)
	}
	if err := checkImage(gImage); err != nil {
		return Pair{}, fmt.Errorf("g image: %w", err)
	}

	var p Pair
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		text, err := t.Transcribe(gctx, fImage)
		if err != nil {
			return fmt.Errorf("transcribe f image: %w", err)
		}
		p.F = text
		return nil
	})
	g.Go(func() error {
		text, err := t.Transcribe(gctx, gImage)
		if err != nil {
			return fmt.Errorf("transcribe g image: %w", err)
		}
		p.G = text
		return nil
	})
	if err := g.Wait(); err != nil {
		return Pair{}, err
	}
	return p, nil
}
