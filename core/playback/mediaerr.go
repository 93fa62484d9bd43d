package playback

import (
	"errors"
	"fmt"
	"strings"
)

// MediaErrCode 媒体元素错误码，与 HTML MediaError 的编码保持一致
type MediaErrCode int

const (
	MediaErrAborted MediaErrCode = iota + 1
	MediaErrNetwork
	MediaErrDecode
	MediaErrSrcNotSupported
)

var mediaErrNames = map[MediaErrCode]string{
	MediaErrAborted:         "MEDIA_ERR_ABORTED",
	MediaErrNetwork:         "MEDIA_ERR_NETWORK",
	MediaErrDecode:          "MEDIA_ERR_DECODE",
	MediaErrSrcNotSupported: "MEDIA_ERR_SRC_NOT_SUPPORTED",
}

func (c MediaErrCode) String() string {
	if name, ok := mediaErrNames[c]; ok {
		return name
	}
	return fmt.Sprintf("MEDIA_ERR_UNKNOWN(%d)", int(c))
}

// ParseMediaErrCode 在边界处把客户端上报的数字错误码收敛为带标签的枚举
func ParseMediaErrCode(code int) (MediaErrCode, error) {
	c := MediaErrCode(code)
	if _, ok := mediaErrNames[c]; !ok {
		return 0, fmt.Errorf("invalid media error code: %d", code)
	}
	return c, nil
}

// MediaError 校验过的媒体错误
type MediaError struct {
	Code   MediaErrCode
	Detail string
}

func (e *MediaError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Detail)
	}
	return e.Code.String()
}

// PlayError 客户端 play() 调用被拒绝时上报的错误
type PlayError struct {
	Name    string
	Message string
}

func (e *PlayError) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

// 新的加载请求打断 play() 时浏览器给出的提示语
const playAbortMessage = "interrupted by a new load request"

// IsPlayAbortError 判断错误是否为预期内的播放中断
// 必须同时满足名称为 AbortError 且消息包含打断提示语，缺一不可
func IsPlayAbortError(err error) bool {
	if err == nil {
		return false
	}
	var pe *PlayError
	if !errors.As(err, &pe) || pe == nil {
		return false
	}
	return pe.Name == "AbortError" && strings.Contains(pe.Message, playAbortMessage)
}
