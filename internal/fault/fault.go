package fault

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrImageDecode   = errors.New("image decode error")
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrSegmentRender = errors.New("segment render error")
	ErrTransition    = errors.New("transition error")
	ErrEncode        = errors.New("encode error")
	ErrCacheIO       = errors.New("cache io error")
	ErrAudioProbe    = errors.New("audio probe error")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, detail string, err error) error {
	msg := buildDetail(stage, detail)
	if marker == nil {
		marker = ErrSegmentRender
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, msg, err)
	}
	return fmt.Errorf("%w: %s", marker, msg)
}

// Stage names the pipeline phase an error was raised in.
type Stage string

const (
	StageValidate   Stage = "validate"
	StageProbe      Stage = "probe"
	StageRender     Stage = "render"
	StageTransition Stage = "transition"
	StageAssemble   Stage = "assemble"
	StageEncode     Stage = "encode"
	StageFinalize   Stage = "finalize"
)

// StageError carries the failing stage and, when the failure belongs to a
// specific timeline item or boundary, its index. Item is -1 when the error is
// not tied to one.
type StageError struct {
	Stage Stage
	Item  int
	Err   error
}

func (e *StageError) Error() string {
	if e.Item >= 0 {
		return fmt.Sprintf("%s: item %d: %v", e.Stage, e.Item, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// AtStage tags err with the stage it failed in. Nil errors pass through.
func AtStage(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Item: -1, Err: err}
}

// AtItem tags err with the stage and the timeline item (or boundary) index.
func AtItem(stage Stage, item int, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Item: item, Err: err}
}

func buildDetail(stage, detail string) string {
	parts := make([]string, 0, 2)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if detail = strings.TrimSpace(detail); detail != "" {
		parts = append(parts, detail)
	}
	if len(parts) == 0 {
		return "pipeline failure"
	}
	return strings.Join(parts, ": ")
}
