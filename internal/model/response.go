package model

// Response is the uniform result of one action. Success is true exactly
// when Result is set and Error is nil; build values with OK and Fail.
type Response[T any] struct {
	Success bool           `json:"success"`
	Result  *T             `json:"result,omitempty"`
	Error   *ResponseError `json:"error,omitempty"`
}

type ResponseError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func OK[T any](result T) Response[T] {
	return Response[T]{Success: true, Result: &result}
}

func Fail[T any](code, message string) Response[T] {
	return Response[T]{Error: &ResponseError{Message: message, Code: code}}
}

// Valid reports whether r satisfies the success/result/error invariant.
func (r Response[T]) Valid() bool {
	if r.Success {
		return r.Result != nil && r.Error == nil
	}
	return r.Result == nil && r.Error != nil
}

// Erase drops the static result type, e.g. before rendering.
func (r Response[T]) Erase() Response[any] {
	out := Response[any]{Success: r.Success, Error: r.Error}
	if r.Result != nil {
		var v any = *r.Result
		out.Result = &v
	}
	return out
}
