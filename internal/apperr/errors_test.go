package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	cases := []struct {
		err    error
		code   Code
		status int
	}{
		{nil, CodeOK, http.StatusOK},
		{Validation("候选人 %s 缺少党派", "12"), CodeValidation, http.StatusBadRequest},
		{Conflict("选举时间冲突"), CodeConflict, http.StatusConflict},
		{NotFound("选举 %s 不存在", "E1"), CodeNotFound, http.StatusNotFound},
		{VotingClosed("投票已关闭"), CodeVotingClosed, http.StatusForbidden},
		{DuplicateVote("重复投票"), CodeDuplicate, http.StatusConflict},
		{errors.New("boom"), CodeInternal, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.code, CodeOf(tc.err))
		assert.Equal(t, tc.status, HTTPStatus(tc.err))
	}
}

func TestWrappedKindSurvivesFurtherWrapping(t *testing.T) {
	err := fmt.Errorf("登记候选人失败: %w", Conflict("候选人编号 %s 已存在", "42"))

	assert.True(t, errors.Is(err, ErrConflict))
	assert.Equal(t, CodeConflict, CodeOf(err))
	assert.Contains(t, Message(err), "候选人编号 42 已存在")
}

func TestMessageHidesInternalErrors(t *testing.T) {
	assert.Equal(t, "服务器内部错误", Message(errors.New("dial tcp 10.0.0.1:3306: i/o timeout")))
}
