package sandbox

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/traefik/yaegi/interp"
	"go.uber.org/zap"

	"tapengine/internal/frame"
	"tapengine/internal/plan"
)

// preamble binds the dataset and the safe helpers into the interpreter's
// global scope. Both snake_case and camelCase helper names are bound because
// the snippet generator's output style is not guaranteed. The interpreter
// receives no stdlib symbols at all; these bindings are the entire surface a
// snippet can touch. That closes the obvious escape routes but is not a
// capability boundary, and nothing here bounds CPU or memory.
const preamble = `df := k.Frame()
safeDivide := k.SafeDivide
safe_divide := k.SafeDivide
safeContains := k.SafeContains
safe_contains := k.SafeContains
cleanResult := k.CleanResult
clean_result := k.CleanResult
scrubResult := k.Scrub
round := k.Round
abs := k.Abs
sum := k.Sum
mean := k.Mean
count := k.Count
var result interface{}
`

// reserved identifiers that a derived metric name may not shadow.
var reserved = map[string]bool{
	"df": true, "result": true, "k": true,
	"safeDivide": true, "safe_divide": true,
	"safeContains": true, "safe_contains": true,
	"cleanResult": true, "clean_result": true, "scrubResult": true,
	"round": true, "abs": true, "sum": true, "mean": true, "count": true,
}

// ErrInterrupted marks a session whose last snippet was cancelled mid-flight.
// The abandoned evaluation may still hold the interpreter, so every later Run
// and Bind on that session fails with this error.
var ErrInterrupted = errors.New("session interrupted: abandoned snippet may still be running")

// Session executes the validated snippets of one plan against one prepared
// dataset. Sessions are single-use and not safe for concurrent use; metrics
// must run in plan order because later snippets may reference earlier
// results.
type Session struct {
	interp *interp.Interpreter
	df     dataframe.DataFrame
	priors map[string]interface{}
	log    *zap.Logger

	// dead is set when a cancelled Run abandons its evaluation goroutine;
	// abandoned is that evaluation's completion channel.
	dead      bool
	abandoned chan error
}

// NewSession builds the interpreter and its restricted namespace around an
// already prepared dataset.
func NewSession(df dataframe.DataFrame, log *zap.Logger) (*Session, error) {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Session{
		df:     df,
		priors: make(map[string]interface{}),
		log:    log,
	}

	i := interp.New(interp.Options{})
	exports := interp.Exports{
		"tapkit/tapkit": {
			"Frame":        reflect.ValueOf(s.frameValue),
			"Prior":        reflect.ValueOf(s.priorValue),
			"SafeDivide":   reflect.ValueOf(frame.SafeDivide),
			"SafeContains": reflect.ValueOf(frame.SafeContains),
			"CleanResult":  reflect.ValueOf(frame.CleanResult),
			"Scrub":        reflect.ValueOf(frame.ScrubShallow),
			"Round":        reflect.ValueOf(frame.Round),
			"Abs":          reflect.ValueOf(frame.Abs),
			"Sum":          reflect.ValueOf(frame.Sum),
			"Mean":         reflect.ValueOf(frame.Mean),
			"Count":        reflect.ValueOf(frame.Count),
		},
	}
	if err := i.Use(exports); err != nil {
		return nil, fmt.Errorf("bind sandbox symbols: %w", err)
	}
	if _, err := i.Eval(`import k "tapkit"`); err != nil {
		return nil, fmt.Errorf("import sandbox package: %w", err)
	}
	if _, err := i.Eval(preamble); err != nil {
		return nil, fmt.Errorf("evaluate sandbox preamble: %w", err)
	}
	s.interp = i
	return s, nil
}

func (s *Session) frameValue() dataframe.DataFrame { return s.df }

func (s *Session) priorValue(name string) interface{} { return s.priors[name] }

// Frame returns the prepared dataset the session executes against.
func (s *Session) Frame() dataframe.DataFrame { return s.df }

// Run evaluates one validated snippet and returns the value bound to the
// result identifier. A runtime failure in the snippet is returned as an
// error and leaves the session usable for the next metric.
//
// Cancelling the context stops the wait, not the snippet: the evaluation
// goroutine cannot be killed, so it may still hold the interpreter after Run
// returns. The session then refuses all further interpreter access and every
// remaining Run and Bind fails with ErrInterrupted. Bounding a hostile
// snippet's cost needs an external mechanism (worker process, rlimits).
func (s *Session) Run(ctx context.Context, code string) (interface{}, error) {
	if s.dead {
		return nil, ErrInterrupted
	}

	done := make(chan error, 1)
	go func() {
		done <- s.eval(code)
	}()

	select {
	case err := <-done:
		if err != nil {
			return nil, err
		}
	case <-ctx.Done():
		s.dead = true
		s.abandoned = done
		return nil, fmt.Errorf("snippet interrupted: %w", ctx.Err())
	}

	v, err := s.interp.Eval(plan.ResultIdent)
	if err != nil {
		return nil, fmt.Errorf("read result binding: %w", err)
	}
	if !v.IsValid() || !v.CanInterface() {
		return nil, nil
	}
	return v.Interface(), nil
}

func (s *Session) eval(code string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("snippet panic: %v", r)
		}
	}()
	_, err = s.interp.Eval(code)
	return err
}

// Bind exposes a previously computed, already normalized metric value to
// subsequent snippets under the identifier derived from the metric name. A
// metric that failed is bound as nil, so a later reference to it fails at
// use as an ordinary per-metric error.
func (s *Session) Bind(metricName string, value interface{}) error {
	if s.dead {
		return fmt.Errorf("bind prior %q: %w", metricName, ErrInterrupted)
	}
	ident := DeriveIdentifier(metricName)
	s.priors[ident] = value
	if _, err := s.interp.Eval(fmt.Sprintf("%s := k.Prior(%q)", ident, ident)); err != nil {
		return fmt.Errorf("bind prior %q: %w", metricName, err)
	}
	return nil
}

// DeriveIdentifier lowercases a metric name and maps every non-alphanumeric
// run to an underscore, producing the identifier later snippets use to
// reference the metric's value.
func DeriveIdentifier(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	ident := b.String()
	if ident == "" || (ident[0] >= '0' && ident[0] <= '9') || reserved[ident] {
		ident = "m_" + ident
	}
	return ident
}
