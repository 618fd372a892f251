package pipeline

import "errors"

var (
	ErrNoFaces            = errors.New("no faces detected in source image")
	ErrLowQuality         = errors.New("styled output failed quality validation")
	ErrSessionUnavailable = errors.New("style-transfer session unavailable")
)
