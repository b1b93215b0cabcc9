package service

import (
	eventqueue "github.com/okian/stakingtier/internal/adapters/mq/queue"
	"github.com/okian/stakingtier/internal/adapters/repository"
	"github.com/okian/stakingtier/internal/domain/types"
)

// Errors surfaced to callers. Match them with errors.Is.
var (
	ErrInvalidInput = types.ErrInvalidInput
	ErrNoResult     = types.ErrNoResult
	ErrNotFound     = repository.ErrNotFound
	ErrBackpressure = eventqueue.ErrFull
	ErrStopped      = eventqueue.ErrClosed
)
