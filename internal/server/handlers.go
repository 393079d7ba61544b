package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/njchilds90/derivtutor/internal/observability"
	"github.com/njchilds90/derivtutor/symbolic"
	"github.com/njchilds90/derivtutor/transcribe"
	"github.com/njchilds90/derivtutor/verify"
)

// ErrorResponse is the body of every non-2xx JSON reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Side    string `json:"side,omitempty"`
	Formula string `json:"formula,omitempty"`
	Details string `json:"details,omitempty"`

	Transcriptions *transcribe.Pair `json:"transcriptions,omitempty"`
}

// ImageCheckResponse is the /api/check-images reply.
type ImageCheckResponse struct {
	verify.Report
	Transcriptions transcribe.Pair `json:"transcriptions"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// handlePing proves both uploads arrived by echoing their media type and
// size as LaTeX.
func (s *Server) handlePing(c *gin.Context) {
	body, err := readObject(c.Request.Body)
	if err != nil {
		body = map[string]any{}
	}
	fImg, gImg := stringField(body, "f_image"), stringField(body, "g_image")
	if fImg == "" || gImg == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Both f_image and g_image are required (data URLs)."})
		return
	}
	f, err := transcribe.ParseDataURL(fImg)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_image", Side: string(verify.SideF), Details: err.Error()})
		return
	}
	g, err := transcribe.ParseDataURL(gImg)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_image", Side: string(verify.SideG), Details: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"latex": uploadLaTeX(f, g)})
}

func uploadLaTeX(f, g *transcribe.DataURL) string {
	var sb strings.Builder
	sb.WriteString(`$$\text{Upload OK: received two images.}\\`)
	fmt.Fprintf(&sb, `\text{f(x) mime}={ %s },\; \text{base64}=%t,\; \text{bytes}=%d\\`, f.MIME, f.Base64, f.Len())
	fmt.Fprintf(&sb, `\text{g(x) mime}={ %s },\; \text{base64}=%t,\; \text{bytes}=%d$$`, g.MIME, g.Base64, g.Len())
	return sb.String()
}

func (s *Server) handleCheck(c *gin.Context) {
	body, err := readObject(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "bad_request", Details: err.Error()})
		return
	}
	out, err := s.verify(c.Request.Context(), "text", body["f"], body["g"], stringField(body, "variable"))
	if err != nil {
		s.writeVerifyError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, out.Report())
}

func (s *Server) handleCheckImages(c *gin.Context) {
	if s.transcriber == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "vision_unavailable",
			Details: transcribe.ErrNoTranscriber.Error(),
		})
		return
	}
	body, err := readObject(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "bad_request", Details: err.Error()})
		return
	}

	pair, err := transcribe.TranscribePair(c.Request.Context(), s.transcriber,
		stringField(body, "f_image"), stringField(body, "g_image"))
	if err != nil {
		if errors.Is(err, transcribe.ErrInvalidDataURL) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_image", Details: err.Error()})
			return
		}
		s.metrics.ObserveTranscription(err)
		s.logger.Error("transcription failed", "request_id", c.GetString("request_id"), "error", err)
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "transcription_failed", Details: err.Error()})
		return
	}
	s.metrics.ObserveTranscription(nil)

	out, err := s.verify(c.Request.Context(), "images", pair.F, pair.G, stringField(body, "variable"))
	if err != nil {
		s.writeVerifyError(c, err, &pair)
		return
	}
	c.JSON(http.StatusOK, ImageCheckResponse{Report: out.Report(), Transcriptions: pair})
}

// verify runs one check inside a span and records its metrics. The check
// is abandoned once the request ends or Server.CheckTimeout passes.
func (s *Server) verify(ctx context.Context, source string, fRaw, gRaw any, hint string) (*verify.Outcome, error) {
	ctx, span := observability.Tracer().Start(ctx, "verify")
	defer span.End()
	span.SetAttributes(attribute.String("derivtutor.source", source))
	if d := s.cfg.Server.CheckTimeout; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	start := time.Now()
	out, err := s.verifier.VerifyContext(ctx, fRaw, gRaw, hint)
	if err != nil {
		span.RecordError(err)
		var pe *verify.ParseError
		if errors.As(err, &pe) {
			span.SetStatus(codes.Error, "parse error")
			s.metrics.ObserveParseError(pe.Side)
		} else {
			span.SetStatus(codes.Error, "check abandoned")
		}
		return nil, err
	}
	s.metrics.ObserveCheck(source, out.Result, time.Since(start))
	span.SetAttributes(
		attribute.String("derivtutor.variable", out.Variable),
		attribute.String("derivtutor.verdict", string(out.Result.Verdict)),
		attribute.Bool("derivtutor.symbolic_equal", out.Result.SymbolicEqual),
		attribute.Int("derivtutor.probes_tested", out.Result.Stats.Tested),
	)
	return out, nil
}

func (s *Server) writeVerifyError(c *gin.Context, err error, pair *transcribe.Pair) {
	var pe *verify.ParseError
	if errors.As(err, &pe) {
		s.logger.Warn("formula rejected",
			"request_id", c.GetString("request_id"),
			"side", pe.Side,
			"formula", pe.Formula,
			"error", pe.Err,
		)
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:          "parse_error",
			Side:           string(pe.Side),
			Formula:        pe.Formula,
			Details:        pe.Err.Error(),
			Transcriptions: pair,
		})
		return
	}
	if tooComplex(err) {
		s.logger.Warn("check abandoned", "request_id", c.GetString("request_id"), "error", err)
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:          "too_complex",
			Details:        err.Error(),
			Transcriptions: pair,
		})
		return
	}
	s.logger.Error("check failed", "request_id", c.GetString("request_id"), "error", err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "server_exception", Details: err.Error()})
}

// tooComplex reports work rejected for size or for running out of time.
func tooComplex(err error) bool {
	return errors.Is(err, symbolic.ErrTooComplex) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}
