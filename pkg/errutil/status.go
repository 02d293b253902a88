package errutil

import "net/http"

type CoreStatus string

const (
	StatusUnknown              CoreStatus = "UNKNOWN"
	StatusBadRequest           CoreStatus = "BAD_REQUEST"
	StatusValidationFailed     CoreStatus = "VALIDATION_FAILED"
	StatusUnauthorized         CoreStatus = "UNAUTHORIZED"
	StatusForbidden            CoreStatus = "FORBIDDEN"
	StatusNotFound             CoreStatus = "NOT_FOUND"
	StatusConflict             CoreStatus = "CONFLICT"
	StatusUnprocessableEntity  CoreStatus = "UNPROCESSABLE_ENTITY"
	StatusUnsupportedMediaType CoreStatus = "UNSUPPORTED_MEDIA_TYPE"
	StatusTooManyRequests      CoreStatus = "TOO_MANY_REQUESTS"
	StatusClientClosedRequest  CoreStatus = "CLIENT_CLOSED_REQUEST"
	StatusTimeout              CoreStatus = "TIMEOUT"
	StatusInternal             CoreStatus = "INTERNAL"
	StatusNotImplemented       CoreStatus = "NOT_IMPLEMENTED"
	StatusBadGateway           CoreStatus = "BAD_GATEWAY"
	StatusServiceUnavailable   CoreStatus = "SERVICE_UNAVAILABLE"
	StatusGatewayTimeout       CoreStatus = "GATEWAY_TIMEOUT"
)

// HTTPStatus converts the CoreStatus to its closest HTTP status code.
func (s CoreStatus) HTTPStatus() int {
	switch s {
	case StatusBadRequest, StatusValidationFailed:
		return http.StatusBadRequest
	case StatusUnauthorized:
		return http.StatusUnauthorized
	case StatusForbidden:
		return http.StatusForbidden
	case StatusNotFound:
		return http.StatusNotFound
	case StatusConflict:
		return http.StatusConflict
	case StatusUnprocessableEntity:
		return http.StatusUnprocessableEntity
	case StatusUnsupportedMediaType:
		return http.StatusUnsupportedMediaType
	case StatusTooManyRequests:
		return http.StatusTooManyRequests
	case StatusClientClosedRequest:
		return 499
	case StatusTimeout, StatusGatewayTimeout:
		return http.StatusGatewayTimeout
	case StatusNotImplemented:
		return http.StatusNotImplemented
	case StatusBadGateway:
		return http.StatusBadGateway
	case StatusServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
