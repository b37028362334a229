// Package codec 将候选人编号可逆地编码为选票令牌。
//
// 编码只是混淆层，不是安全边界：密钥是带外分发的小整数。
// 令牌格式为 <补位标记><左半部分><右半部分>，全部为十进制数字，
// 两个半部分按相同宽度补零，宽度由原始编号的位数决定。
package codec

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"

	"github.com/lvdashuaibi/votecore/internal/apperr"
)

const (
	// 半部分最多18位十进制数，保证异或结果仍在 uint64 内
	maxHalfDigits = 18

	flagPlain  = '0'
	flagPadded = '1'
)

// BallotCodec 选票编码接口
type BallotCodec interface {
	Encode(candidateID string) (string, error)
	Decode(token string) (string, error)
}

// Feistel 基于 Feistel 结构的编码器，每轮 (L, R) -> (R, L ^ (R ^ key))
type Feistel struct {
	key    uint64
	rounds int
}

// NewFeistel 创建编码器。
// 该轮函数连续三轮的组合是恒等变换，因此轮数不能是3的倍数。
func NewFeistel(key uint64, rounds int) (*Feistel, error) {
	if rounds <= 0 {
		return nil, apperr.Validation("编码轮数必须为正数: %d", rounds)
	}
	if rounds%3 == 0 {
		return nil, apperr.Validation("编码轮数不能是3的倍数: %d", rounds)
	}
	return &Feistel{key: key, rounds: rounds}, nil
}

// Encode 编码候选人编号
func (f *Feistel) Encode(candidateID string) (string, error) {
	if !isDigits(candidateID) {
		return "", apperr.Validation("候选人编号必须为十进制数字: %q", candidateID)
	}
	if len(candidateID) > 2*maxHalfDigits {
		return "", apperr.Validation("候选人编号超过 %d 位", 2*maxHalfDigits)
	}

	flag := byte(flagPlain)
	digits := candidateID
	if len(digits)%2 == 1 {
		digits = "0" + digits
		flag = flagPadded
	}

	width := len(digits) / 2
	left, err := strconv.ParseUint(digits[:width], 10, 64)
	if err != nil {
		return "", fmt.Errorf("解析候选人编号失败: %w", err)
	}
	right, err := strconv.ParseUint(digits[width:], 10, 64)
	if err != nil {
		return "", fmt.Errorf("解析候选人编号失败: %w", err)
	}

	mask := halfMask(width)
	left, right = f.permute(left, right, mask)

	tokenWidth := digitCount(mask)
	var sb strings.Builder
	sb.Grow(1 + 2*tokenWidth)
	sb.WriteByte(flag)
	sb.WriteString(pad(left, tokenWidth))
	sb.WriteString(pad(right, tokenWidth))
	return sb.String(), nil
}

// Decode 解码选票令牌，密钥不同时得到的是另一个（错误的）编号
func (f *Feistel) Decode(token string) (string, error) {
	if !isDigits(token) || len(token) < 3 || (len(token)-1)%2 != 0 {
		return "", apperr.Validation("无效的选票令牌: %q", token)
	}
	flag := token[0]
	if flag != flagPlain && flag != flagPadded {
		return "", apperr.Validation("无效的选票令牌标记: %q", token)
	}

	tokenWidth := (len(token) - 1) / 2
	width := tokenWidth - 1
	if width < 1 || width > maxHalfDigits {
		return "", apperr.Validation("选票令牌长度无效: %q", token)
	}
	mask := halfMask(width)
	if digitCount(mask) != tokenWidth {
		return "", apperr.Validation("选票令牌长度无效: %q", token)
	}

	left, err := strconv.ParseUint(token[1:1+tokenWidth], 10, 64)
	if err != nil {
		return "", apperr.Validation("无效的选票令牌: %q", token)
	}
	right, err := strconv.ParseUint(token[1+tokenWidth:], 10, 64)
	if err != nil {
		return "", apperr.Validation("无效的选票令牌: %q", token)
	}
	if left > mask || right > mask {
		return "", apperr.Validation("选票令牌超出范围: %q", token)
	}

	// 交换后套用同一轮函数即可逆推
	r, l := f.permute(right, left, mask)

	digits := pad(l, width) + pad(r, width)
	if flag == flagPadded && len(digits) > 1 && digits[0] == '0' {
		digits = digits[1:]
	}
	return digits, nil
}

func (f *Feistel) permute(left, right, mask uint64) (uint64, uint64) {
	key := foldKey(f.key, mask)
	for i := 0; i < f.rounds; i++ {
		left, right = right, left^(right^key)
	}
	return left, right
}

// foldKey 把密钥按掩码宽度分段异或，短编号也受密钥所有位的影响
func foldKey(key, mask uint64) uint64 {
	shift := bits.Len64(mask)
	var folded uint64
	for ; key != 0; key >>= shift {
		folded ^= key & mask
	}
	return folded
}

// halfMask 覆盖 width 位十进制数的最小全1二进制掩码
func halfMask(width int) uint64 {
	limit := uint64(1)
	for i := 0; i < width; i++ {
		limit *= 10
	}
	return 1<<bits.Len64(limit-1) - 1
}

func digitCount(v uint64) int {
	return len(strconv.FormatUint(v, 10))
}

func pad(v uint64, width int) string {
	return fmt.Sprintf("%0*d", width, v)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
