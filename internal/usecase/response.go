package usecase

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Response is the worker's only externally visible output: either
// {status: success, image_b64} or {status: error, message}.
type Response struct {
	Status   string `json:"status"`
	ImageB64 string `json:"image_b64,omitempty"`
	Message  string `json:"message,omitempty"`
}

// SuccessResponse wraps an encoded output image.
func SuccessResponse(imageB64 string) Response {
	return Response{Status: StatusSuccess, ImageB64: imageB64}
}

// ErrorResponse wraps a user-facing failure message.
func ErrorResponse(message string) Response {
	return Response{Status: StatusError, Message: message}
}

// OK reports whether r is the success variant.
func (r Response) OK() bool {
	return r.Status == StatusSuccess
}
