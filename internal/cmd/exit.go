package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/fulmenhq/gofulmen/foundry"
	"go.uber.org/zap"

	apperrors "github.com/namelens/octolens/internal/errors"
	"github.com/namelens/octolens/internal/github"
)

// ExitCode is a semantic process exit status from the foundry catalog.
type ExitCode = foundry.ExitCode

// Exit codes shared with the foundry catalog.
var (
	ExitFailure                    = foundry.ExitFailure
	ExitConfigInvalid              = foundry.ExitConfigInvalid
	ExitExternalServiceUnavailable = foundry.ExitExternalServiceUnavailable
	ExitFileNotFound               = foundry.ExitFileNotFound
)

// octolens codes outside the foundry set follow sysexits(3).
const (
	ExitSuccess          ExitCode = 0
	ExitInvalidArgument  ExitCode = 64
	ExitDataInvalid      ExitCode = 65
	ExitNotFound         ExitCode = 66
	ExitInternal         ExitCode = 70
	ExitRateLimited      ExitCode = 75
	ExitPermissionDenied ExitCode = 77
)

// ExitCodeInfo describes an exit code for logs and stderr.
type ExitCodeInfo struct {
	Code        int
	Name        string
	Description string
	Category    string
}

// localExitCodes describes the sysexits codes when foundry has no entry.
var localExitCodes = map[ExitCode]ExitCodeInfo{
	ExitSuccess:          {0, "SUCCESS", "Completed successfully", "standard"},
	ExitInvalidArgument:  {64, "INVALID_ARGUMENT", "Invalid command-line usage or argument", "usage"},
	ExitDataInvalid:      {65, "DATA_INVALID", "Input data was malformed", "usage"},
	ExitNotFound:         {66, "NOT_FOUND", "Requested GitHub resource does not exist", "remote"},
	ExitInternal:         {70, "INTERNAL", "Internal software error", "runtime"},
	ExitRateLimited:      {75, "RATE_LIMITED", "GitHub rate limit exhausted; retry after reset", "remote"},
	ExitPermissionDenied: {77, "PERMISSION_DENIED", "GitHub rejected the credentials", "remote"},
}

// GetExitCodeInfo returns catalog metadata for code, preferring the foundry
// catalog.
func GetExitCodeInfo(code ExitCode) (ExitCodeInfo, bool) {
	if info, ok := foundry.GetExitCodeInfo(code); ok {
		return ExitCodeInfo{
			Code:        info.Code,
			Name:        info.Name,
			Description: info.Description,
			Category:    info.Category,
		}, true
	}
	info, ok := localExitCodes[code]
	return info, ok
}

var defaultExit = os.Exit

// exitFunc is replaced in tests.
var exitFunc = defaultExit

// ExitCodeForError picks the exit code that best describes err.
func ExitCodeForError(err error) ExitCode {
	if err == nil {
		return ExitSuccess
	}

	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	var respErr *github.ErrorResponse
	var envelope *errors.ErrorEnvelope

	switch {
	case stderrors.As(err, &rateErr), stderrors.As(err, &abuseErr):
		return ExitRateLimited
	case stderrors.Is(err, github.ErrInvalidLogin):
		return ExitInvalidArgument
	case stderrors.Is(err, context.DeadlineExceeded):
		return ExitExternalServiceUnavailable
	case stderrors.As(err, &respErr):
		switch respErr.StatusCode() {
		case 401, 403:
			return ExitPermissionDenied
		case 404:
			return ExitNotFound
		case 422:
			return ExitDataInvalid
		default:
			return ExitExternalServiceUnavailable
		}
	case stderrors.As(err, &envelope):
		if cause := apperrors.Cause(err); cause != err {
			if code := ExitCodeForError(cause); code != ExitFailure {
				return code
			}
		}
		switch envelope.Code {
		case apperrors.CodeInvalidInput:
			return ExitInvalidArgument
		case apperrors.CodeNotFound:
			return ExitNotFound
		case apperrors.CodeRateLimited:
			return ExitRateLimited
		}
	}
	return ExitFailure
}

// ExitWithCode exits the program with a semantic exit code and logs the error.
// logger may be nil for failures before logger initialization.
func ExitWithCode(logger *zap.Logger, exitCode ExitCode, msg string, err error) {
	info, ok := GetExitCodeInfo(exitCode)
	if !ok {
		info = ExitCodeInfo{Code: int(exitCode), Name: "UNKNOWN"}
	}

	if logger == nil {
		writeExitStderr(info, msg, err)
		exitFunc(info.Code)
		return
	}

	fields := []zap.Field{
		zap.Int("exit_code", info.Code),
		zap.String("exit_name", info.Name),
		zap.String("exit_category", info.Category),
	}

	var envelope *errors.ErrorEnvelope
	if stderrors.As(err, &envelope) {
		fields = append(fields,
			zap.String("error_code", envelope.Code),
			zap.String("error_message", envelope.Message),
			zap.String("correlation_id", envelope.CorrelationID),
		)
		if len(envelope.Details) > 0 {
			fields = append(fields, zap.Any("error_details", envelope.Details))
		}
		err = apperrors.Cause(err)
	}

	var rateErr *github.RateLimitError
	if stderrors.As(err, &rateErr) {
		fields = append(fields,
			zap.String("resource", rateErr.Resource),
			zap.Duration("retry_after", rateErr.Wait),
		)
	}

	fields = append(fields, zap.Error(err))
	logger.Error(msg, fields...)
	exitFunc(info.Code)
}

// ExitWithCodeStderr is a variant that writes to stderr without a logger.
// Use this for early failures before logger initialization.
func ExitWithCodeStderr(exitCode ExitCode, msg string, err error) {
	ExitWithCode(nil, exitCode, msg, err)
}

func writeExitStderr(info ExitCodeInfo, msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "FATAL: %s\n", msg)
	}
	fmt.Fprintf(os.Stderr, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
}
