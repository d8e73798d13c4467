package service

import (
	"errors"
	"fmt"
)

/*
APIError 面向调用方的业务错误
功能：携带机器可读的 code、可展示的 message 与 HTTP 状态码，
由 handler 转换为 {code, message, data:{status}} 响应
*/
type APIError struct {
	Code    string
	Message string
	Status  int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

/* NewAPIError 创建业务错误 */
func NewAPIError(status int, code, message string) *APIError {
	return &APIError{Code: code, Message: message, Status: status}
}

/* AsAPIError 提取业务错误 */
func AsAPIError(err error) (*APIError, bool) {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
