package dispatch

import (
	"errors"

	"github.com/okian/agentmatch/internal/domain/quota"
)

// Synchronous dispatch errors.
var (
	ErrProfileIncomplete = errors.New("profile completeness below threshold")
	ErrCandidateNotFound = errors.New("candidate not found")
	ErrInvalidRequest    = errors.New("invalid dispatch request")
	ErrDuplicateInFlight = errors.New("a dispatch toward this candidate is already in flight")
	ErrQuotaExhausted    = quota.ErrQuotaExhausted
	ErrBackpressure      = errors.New("dispatch queue is full")
)

// Status and report errors.
var (
	ErrJobNotFound = errors.New("dispatch job not found")
	ErrNotReady    = errors.New("dispatch report not ready")
	ErrJobFailed   = errors.New("dispatch failed; no report available")
)

// Generator errors.
var (
	ErrGeneratorTimeout = errors.New("conversation generator timed out")
	ErrMalformedOutput  = errors.New("conversation generator returned malformed output")
)
