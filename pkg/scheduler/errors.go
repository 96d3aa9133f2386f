package scheduler

import (
	cerr "cachecore/pkg/error"
)

const (
	ErrCodeJobNotFound     cerr.ErrorCode = "JOB_NOT_FOUND"
	ErrCodeJobExists       cerr.ErrorCode = "JOB_EXISTS"
	ErrCodeJobInvalid      cerr.ErrorCode = "JOB_INVALID"
	ErrCodeJobDisabled     cerr.ErrorCode = "JOB_DISABLED"
	ErrCodeExecutorMissing cerr.ErrorCode = "EXECUTOR_MISSING"
	ErrCodeConfigLoad      cerr.ErrorCode = "CONFIG_LOAD_FAILED"
)

var (
	ErrJobNotFound     = cerr.NewError(ErrCodeJobNotFound, "job not found")
	ErrJobExists       = cerr.NewError(ErrCodeJobExists, "job already exists")
	ErrJobInvalid      = cerr.NewError(ErrCodeJobInvalid, "invalid job config")
	ErrJobDisabled     = cerr.NewError(ErrCodeJobDisabled, "job disabled")
	ErrExecutorMissing = cerr.NewError(ErrCodeExecutorMissing, "job executor not set")
)

func jobError(code cerr.ErrorCode, message, job string) error {
	return cerr.NewError(code, message).WithContext("job", job)
}
