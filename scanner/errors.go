package scanner

import (
	"github.com/myafeier/qrcam/camera"
	"github.com/pkg/errors"
)

var (
	ErrAlreadyRunning = errors.New("camera is already running")
	ErrNotRunning     = errors.New("camera is not running")
	ErrNoBackend      = camera.ErrNoBackend
	ErrNoCamera       = camera.ErrNoCamera
)

// Stage 标记出错的环节
type Stage string

const (
	StageDevice  Stage = "device"
	StageOpen    Stage = "stream open"
	StageRead    Stage = "frame read"
	StageDecode  Stage = "image decode"
	StageQR      Stage = "qr decode"
	StageEncode  Stage = "preview encode"
	StageEmit    Stage = "event emission"
	StageUnknown Stage = "unknown"
)

// StageError 是终止会话的错误，不会重试
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return string(e.Stage) + " failed: " + e.Err.Error()
}

func (e *StageError) Unwrap() error { return e.Err }

func (e *StageError) Cause() error { return e.Err }

func stageErr(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}

func stageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return StageUnknown
}
