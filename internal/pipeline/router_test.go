package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/maauso/storyforge-api/internal/format"
)

// recordingPipeline is a Pipeline stub that records whether Execute ran.
type recordingPipeline struct {
	formatID    string
	validateErr error
	result      *Result
	execErr     error
	panics      bool
	executed    atomic.Bool
}

func (p *recordingPipeline) FormatID() string         { return p.formatID }
func (p *recordingPipeline) Validate(Request) error   { return p.validateErr }
func (p *recordingPipeline) Execute(context.Context, Request) (*Result, error) {
	p.executed.Store(true)
	if p.panics {
		panic("scene index out of range")
	}
	return p.result, p.execErr
}

func dispatchCode(t *testing.T, err error) Code {
	t.Helper()
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("expected *pipeline.Error, got %T: %v", err, err)
	}
	return perr.Code
}

func TestRouter_TypedValidationErrors(t *testing.T) {
	registry := format.NewDefaultRegistry()
	router := NewRouter(registry, nil)

	docs := &recordingPipeline{formatID: "documentary", result: &Result{Success: true}}
	router.Register(docs)

	tests := []struct {
		name string
		req  Request
		code Code
	}{
		{
			name: "empty format ID",
			req:  Request{Idea: "topic"},
			code: CodeInvalidFormat,
		},
		{
			name: "unknown format",
			req:  Request{FormatID: "podcast", Idea: "topic"},
			code: CodeFormatNotFound,
		},
		{
			name: "format without pipeline",
			req:  Request{FormatID: "shorts", Idea: "topic"},
			code: CodePipelineNotFound,
		},
		{
			name: "unsupported language rejected before execution",
			req:  Request{FormatID: "documentary", Idea: "topic", Language: "fr"},
			code: CodeValidationFailed,
		},
		{
			name: "inapplicable genre",
			req:  Request{FormatID: "documentary", Idea: "topic", Genre: "Romance"},
			code: CodeValidationFailed,
		},
		{
			name: "empty idea",
			req:  Request{FormatID: "documentary", Idea: "   "},
			code: CodeValidationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs.executed.Store(false)
			result, err := router.Dispatch(context.Background(), tt.req)
			if result != nil {
				t.Errorf("expected nil result, got %+v", result)
			}
			if code := dispatchCode(t, err); code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, code)
			}
			if docs.executed.Load() {
				t.Error("pipeline executed despite validation failure")
			}
		})
	}
}

func TestRouter_LanguageErrorListsAlternatives(t *testing.T) {
	registry := format.NewDefaultRegistry()
	router := NewRouter(registry, nil)
	router.Register(&recordingPipeline{formatID: "documentary"})

	_, err := router.Dispatch(context.Background(), Request{
		FormatID: "documentary",
		Idea:     "topic",
		Language: "fr",
	})
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	if !strings.Contains(msg, `"fr"`) || !strings.Contains(msg, "available languages") {
		t.Errorf("error should name the language and list supported ones, got: %s", msg)
	}
}

func TestRouter_DispatchSuccess(t *testing.T) {
	registry := format.NewDefaultRegistry()
	router := NewRouter(registry, nil)
	docs := &recordingPipeline{formatID: "documentary", result: &Result{Success: true}}
	router.Register(docs)

	result, err := router.Dispatch(context.Background(), Request{
		FormatID: "documentary",
		Idea:     "The fall of the Roman Empire",
		Genre:    "History",
		Language: "en",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Error("expected successful result")
	}
	if !docs.executed.Load() {
		t.Error("pipeline never executed")
	}
}

func TestRouter_ExecutionErrorWrapped(t *testing.T) {
	registry := format.NewDefaultRegistry()
	router := NewRouter(registry, nil)

	boom := errors.New("vendor unavailable")
	partial := &Result{SessionID: "session-1"}
	router.Register(&recordingPipeline{formatID: "documentary", result: partial, execErr: boom})

	result, err := router.Dispatch(context.Background(), Request{
		FormatID: "documentary",
		Idea:     "topic",
	})
	if code := dispatchCode(t, err); code != CodeExecutionFailed {
		t.Fatalf("expected EXECUTION_FAILED, got %s", code)
	}
	if !errors.Is(err, boom) {
		t.Error("wrapped error should unwrap to the pipeline error")
	}

	var perr *Error
	errors.As(err, &perr)
	if perr.Request == nil || perr.Request.FormatID != "documentary" {
		t.Error("execution error should carry the originating request")
	}
	// Partial output survives alongside the error.
	if result == nil || result.SessionID != "session-1" {
		t.Errorf("expected partial result with session ID, got %+v", result)
	}
}

func TestRouter_PanicRecovered(t *testing.T) {
	registry := format.NewDefaultRegistry()
	router := NewRouter(registry, nil)
	router.Register(&recordingPipeline{formatID: "documentary", panics: true})

	_, err := router.Dispatch(context.Background(), Request{
		FormatID: "documentary",
		Idea:     "topic",
	})
	if code := dispatchCode(t, err); code != CodeExecutionFailed {
		t.Fatalf("expected EXECUTION_FAILED after panic, got %s", code)
	}
	if !strings.Contains(err.Error(), "panicked") {
		t.Errorf("expected panic mention in error, got: %v", err)
	}
}

func TestRouter_DeprecatedFormatWarns(t *testing.T) {
	registry := format.NewDefaultRegistry()
	if err := registry.Deprecate("documentary", "use the educational format"); err != nil {
		t.Fatal(err)
	}
	router := NewRouter(registry, nil)
	router.Register(&recordingPipeline{formatID: "documentary", result: &Result{Success: true}})

	result, err := router.Dispatch(context.Background(), Request{
		FormatID: "documentary",
		Idea:     "topic",
	})
	if err != nil {
		t.Fatalf("deprecated format must still execute: %v", err)
	}
	found := false
	for _, w := range result.Warnings {
		if w == "use the educational format" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected deprecation warning, got %v", result.Warnings)
	}
}
