package sandbox

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/uhyunpark/hibachi/pkg/errs"
)

// Error codes carried in rejection bodies and failed batch records.
const (
	CodeInternal         = 0
	CodeInvalidSignature = 1
	CodeNonceUsed        = 2
	CodeOrderNotFound    = 3
	CodeInvalidRequest   = 4
	CodeDeadlineExceeded = 5
	CodeMaintenance      = 6
	CodeForbidden        = 7
)

const rejectionStatus = "failed"

var codeStatus = map[int]int{
	CodeInvalidSignature: http.StatusUnauthorized,
	CodeNonceUsed:        http.StatusBadRequest,
	CodeOrderNotFound:    http.StatusNotFound,
	CodeInvalidRequest:   http.StatusBadRequest,
	CodeDeadlineExceeded: http.StatusBadRequest,
	CodeMaintenance:      http.StatusServiceUnavailable,
	CodeForbidden:        http.StatusForbidden,
}

// Rejection is a request the exchange refused.
type Rejection struct {
	Code       int
	HTTPStatus int
	Message    string
}

func (r *Rejection) Error() string {
	return errs.FormatExchangeMessage(r.Code, rejectionStatus, r.Message)
}

func reject(code int, format string, args ...any) *Rejection {
	status, ok := codeStatus[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	return &Rejection{Code: code, HTTPStatus: status, Message: fmt.Sprintf(format, args...)}
}

func rejectionOf(err error) *Rejection {
	var r *Rejection
	if errors.As(err, &r) {
		return r
	}
	return &Rejection{Code: CodeInternal, HTTPStatus: http.StatusInternalServerError, Message: err.Error()}
}
