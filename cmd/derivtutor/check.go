package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/njchilds90/derivtutor/equiv"
	"github.com/njchilds90/derivtutor/internal/config"
	"github.com/njchilds90/derivtutor/symbolic"
	"github.com/njchilds90/derivtutor/transcribe"
	"github.com/njchilds90/derivtutor/verify"
)

type checkFlags struct {
	variable string
	asJSON   bool
	tree     bool
}

func (fl *checkFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&fl.variable, "var", "", "variable of differentiation (default x)")
	cmd.Flags().BoolVar(&fl.asJSON, "json", false, "print the report as JSON")
	cmd.Flags().BoolVar(&fl.tree, "tree", false, "also print the derivative's expression tree")
}

func newCheckCmd() *cobra.Command {
	var fl checkFlags
	var f, g string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check g against the derivative of f",
		Long: `Check g against the derivative of f.

Each of --f and --g is a formula such as 'x**2*sin(x)'. A value starting
with @ names a file holding a transcription in the SYMPY/LATEX/VAR format
or a JSON object with expr_sympy, expr_latex and variable fields.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fRaw, err := operand(f)
			if err != nil {
				return &exitCodeError{code: exitError, err: err}
			}
			gRaw, err := operand(g)
			if err != nil {
				return &exitCodeError{code: exitError, err: err}
			}
			out, err := verify.Verify(fRaw, gRaw, fl.variable)
			return printOutcome(cmd.OutOrStdout(), out, err, nil, fl)
		},
	}
	cmd.Flags().StringVar(&f, "f", "", "the function, or @file")
	cmd.Flags().StringVar(&g, "g", "", "the proposed derivative, or @file")
	_ = cmd.MarkFlagRequired("f")
	_ = cmd.MarkFlagRequired("g")
	fl.register(cmd)
	return cmd
}

func newCheckImagesCmd() *cobra.Command {
	var fl checkFlags
	var fPath, gPath, configPath string
	cmd := &cobra.Command{
		Use:   "check-images",
		Short: "Transcribe two handwritten images, then check them",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return &exitCodeError{code: exitError, err: err}
			}
			tr, err := transcribe.NewOpenAI(transcribe.OpenAIConfig{
				APIKey:  cfg.Vision.APIKey,
				Model:   cfg.Vision.Model,
				BaseURL: cfg.Vision.BaseURL,
				Timeout: cfg.Vision.Timeout,
			})
			if err != nil {
				return &exitCodeError{code: exitError, err: err}
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			pair, err := transcribeFiles(ctx, tr, fPath, gPath)
			if err != nil {
				return &exitCodeError{code: exitError, err: err}
			}
			out, err := verify.New(nil).VerifyContext(ctx, pair.F, pair.G, fl.variable)
			return printOutcome(cmd.OutOrStdout(), out, err, &pair, fl)
		},
	}
	cmd.Flags().StringVar(&fPath, "f-image", "", "image of the function")
	cmd.Flags().StringVar(&gPath, "g-image", "", "image of the proposed derivative")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML config file (default $"+config.EnvConfigPath+")")
	_ = cmd.MarkFlagRequired("f-image")
	_ = cmd.MarkFlagRequired("g-image")
	fl.register(cmd)
	return cmd
}

// operand turns a --f/--g value into something decode.Decode understands.
func operand(v string) (any, error) {
	if path, ok := strings.CutPrefix(v, "@"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	}
	return map[string]any{"expr_sympy": v}, nil
}

func transcribeFiles(ctx context.Context, tr transcribe.Transcriber, fPath, gPath string) (transcribe.Pair, error) {
	fURL, err := fileDataURL(fPath)
	if err != nil {
		return transcribe.Pair{}, err
	}
	gURL, err := fileDataURL(gPath)
	if err != nil {
		return transcribe.Pair{}, err
	}
	return transcribe.TranscribePair(ctx, tr, fURL, gURL)
}

func fileDataURL(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	mt := mime.TypeByExtension(filepath.Ext(path))
	if mt == "" {
		mt = http.DetectContentType(data)
	}
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return "data:" + mt + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func printOutcome(w io.Writer, out *verify.Outcome, verr error, pair *transcribe.Pair, fl checkFlags) error {
	if verr != nil {
		if pair != nil {
			fmt.Fprintf(w, "f transcription:\n%s\n\ng transcription:\n%s\n\n", pair.F, pair.G)
		}
		return &exitCodeError{code: exitError, err: verr}
	}
	rep := out.Report()

	if fl.asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			return &exitCodeError{code: exitError, err: err}
		}
	} else {
		fmt.Fprintf(w, "f(%s)      = %s\n", rep.Variable, rep.F.Formula)
		fmt.Fprintf(w, "f'(%s)     = %s\n", rep.Variable, rep.Derivative.Formula)
		fmt.Fprintf(w, "g(%s)      = %s\n", rep.Variable, rep.G.Formula)
		fmt.Fprintf(w, "symbolic   = %t\n", rep.SymbolicEqual)
		fmt.Fprintf(w, "numeric    = %t (%d/%d probes)\n", rep.NumericEqual, rep.NumericStats.Matched, rep.NumericStats.Tested)
		fmt.Fprintf(w, "verdict    = %s\n", rep.Verdict)
	}
	if fl.tree {
		tree, err := symbolic.ToJSON(out.Derivative)
		if err != nil {
			return &exitCodeError{code: exitError, err: err}
		}
		fmt.Fprintln(w, tree)
	}

	if rep.Verdict != equiv.Correct {
		return &exitCodeError{code: exitIncorrect}
	}
	return nil
}
