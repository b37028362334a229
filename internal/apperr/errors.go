// Package apperr 定义核心模块对外暴露的错误分类。
//
// 所有错误都是终态的：核心内部不会重试，由接口层映射为结构化结果。
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation 输入缺失或格式错误
	ErrValidation = errors.New("validation error")
	// ErrConflict 违反唯一性或排期约束
	ErrConflict = errors.New("conflict")
	// ErrNotFound 引用的实体不存在
	ErrNotFound = errors.New("not found")
	// ErrVotingClosed 选举未在进行中或选民所在市已被禁用
	ErrVotingClosed = errors.New("voting closed")
	// ErrDuplicateVote 选民已在本次选举中投过票
	ErrDuplicateVote = errors.New("duplicate vote")
)

// Code 稳定的错误码，供接口层返回
type Code string

const (
	CodeOK           Code = "OK"
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeConflict     Code = "CONFLICT"
	CodeNotFound     Code = "NOT_FOUND"
	CodeVotingClosed Code = "VOTING_CLOSED"
	CodeDuplicate    Code = "DUPLICATE_VOTE"
	CodeInternal     Code = "INTERNAL"
)

func Validation(format string, args ...any) error {
	return wrap(ErrValidation, format, args...)
}

func Conflict(format string, args ...any) error {
	return wrap(ErrConflict, format, args...)
}

func NotFound(format string, args ...any) error {
	return wrap(ErrNotFound, format, args...)
}

func VotingClosed(format string, args ...any) error {
	return wrap(ErrVotingClosed, format, args...)
}

func DuplicateVote(format string, args ...any) error {
	return wrap(ErrDuplicateVote, format, args...)
}

func wrap(kind error, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), kind)
}

// CodeOf 返回错误对应的错误码，nil 返回 CodeOK
func CodeOf(err error) Code {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrVotingClosed):
		return CodeVotingClosed
	case errors.Is(err, ErrDuplicateVote):
		return CodeDuplicate
	default:
		return CodeInternal
	}
}

// HTTPStatus 返回错误对应的HTTP状态码
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeOK:
		return http.StatusOK
	case CodeValidation:
		return http.StatusBadRequest
	case CodeConflict, CodeDuplicate:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	case CodeVotingClosed:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Message 返回可展示给用户的错误信息，内部错误不暴露细节
func Message(err error) string {
	switch CodeOf(err) {
	case CodeOK:
		return "操作成功"
	case CodeInternal:
		return "服务器内部错误"
	default:
		return err.Error()
	}
}
