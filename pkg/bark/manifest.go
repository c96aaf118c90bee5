package bark

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/sre-norns/vellum/pkg/destination"
	"github.com/sre-norns/vellum/pkg/grace"
	"github.com/sre-norns/vellum/pkg/preview"
	"github.com/sre-norns/vellum/pkg/ticket"
)

var (
	ErrUnsupportedMediaType = fmt.Errorf("unsupported content type request")
	ErrUnknownSession       = fmt.Errorf("unknown session")
	ErrUnknownPreview       = fmt.Errorf("preview not found")
	ErrSupersededPreview    = fmt.Errorf("preview was superseded before it was rendered")
)

const (
	responseMarshalKey = "responseMarshal"
	sessionKey         = "session"
)

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Code    int    `json:"code" yaml:"code"`
	Message string `json:"message" yaml:"message"`

	Expected string `json:"expected,omitempty" yaml:"expected,omitempty"`
	Got      string `json:"got,omitempty" yaml:"got,omitempty"`
	WhatToDo string `json:"whatToDo,omitempty" yaml:"whatToDo,omitempty"`
}

func NewErrorResponse(statusCode int, err error) ErrorResponse {
	result := ErrorResponse{
		Code:    statusCode,
		Message: err.Error(),
	}

	var actionable grace.Error
	if errors.As(err, &actionable) {
		result.Expected = actionable.WhatExpected()
		result.Got = actionable.WhatHappened()
		result.WhatToDo = actionable.WhatToDo()
	}

	return result
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("%v %s", e.Code, e.Message)
}

// StatusFor maps domain errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrUnknownSession),
		errors.Is(err, ErrUnknownPreview),
		errors.Is(err, ticket.ErrUnknownSetting),
		errors.Is(err, destination.ErrUnknownDestination):
		return http.StatusNotFound
	case errors.Is(err, ticket.ErrInvalidSettingValue),
		errors.Is(err, destination.ErrUnsupportedVersion),
		errors.Is(err, destination.ErrNoDestinationID),
		errors.Is(err, ErrUnsupportedMediaType):
		return http.StatusBadRequest
	case errors.Is(err, ticket.ErrSettingUnavailable),
		errors.Is(err, preview.ErrNotInitialized),
		errors.Is(err, preview.ErrAlreadyInitialized):
		return http.StatusConflict
	case errors.Is(err, preview.ErrSessionClosed),
		errors.Is(err, ErrSupersededPreview):
		return http.StatusGone
	}

	return http.StatusInternalServerError
}

func AbortWithError(ctx *gin.Context, code int, errValue error) {
	if apiError, ok := errValue.(*ErrorResponse); ok {
		ctx.AbortWithStatusJSON(apiError.Code, apiError)
		return
	}

	ctx.AbortWithStatusJSON(code, NewErrorResponse(code, errValue))
}

// Abort replies with the status code matching the error.
func Abort(ctx *gin.Context, err error) {
	AbortWithError(ctx, StatusFor(err), err)
}

func filterFlags(content string) string {
	for i, char := range content {
		if char == ' ' || char == ';' {
			return content[:i]
		}
	}
	return content
}

func selectAcceptedType(header http.Header) []string {
	accepts := header.Values("Accept")
	result := make([]string, 0, len(accepts))
	for _, a := range accepts {
		result = append(result, filterFlags(a))
	}
	if len(result) == 0 {
		result = append(result, "")
	}

	return result
}

type responseHandler func(code int, obj any)

func replyWithAcceptedType(c *gin.Context) (responseHandler, error) {
	for _, contentType := range selectAcceptedType(c.Request.Header) {
		switch contentType {
		case "", "*/*", gin.MIMEJSON:
			return c.JSON, nil
		case gin.MIMEYAML, "text/yaml", "application/yaml", "text/x-yaml":
			return c.YAML, nil
		}
	}

	return nil, ErrUnsupportedMediaType
}

// ContentTypeApi selects the response encoder from the Accept header.
func ContentTypeApi() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		marshalResponse, err := replyWithAcceptedType(ctx)
		if err != nil {
			AbortWithError(ctx, http.StatusNotAcceptable, err)
			return
		}

		ctx.Set(responseMarshalKey, marshalResponse)
		ctx.Next()
	}
}

func MarshalResponse(ctx *gin.Context, code int, responseValue any) {
	marshalResponse := ctx.MustGet(responseMarshalKey).(responseHandler)
	marshalResponse(code, responseValue)
}

// Monkey-patch GIN to respect other spelling of yaml mime-type
func bindingFor(method, contentType string) binding.Binding {
	switch contentType {
	case gin.MIMEYAML, "text/yaml", "application/yaml", "text/x-yaml":
		return binding.YAML
	case "", "*/*", gin.MIMEJSON:
		return binding.JSON
	default:
		return binding.Default(method, contentType)
	}
}

// SessionApi resolves the `:id` path parameter to a live session.
// Used in conjunction with `RequireSession`
func SessionApi(sessions *preview.Sessions) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		id := ctx.Param("id")
		session, ok := sessions.Get(id)
		if !ok {
			AbortWithError(ctx, http.StatusNotFound, fmt.Errorf("%w: %q", ErrUnknownSession, id))
			return
		}

		ctx.Set(sessionKey, session)
		ctx.Next()
	}
}

func RequireSession(ctx *gin.Context) *preview.Session {
	return ctx.MustGet(sessionKey).(*preview.Session)
}
