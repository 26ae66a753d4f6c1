package index

import "net/http"

// Response is the envelope handed back to the request boundary. Its JSON
// form matches an API Gateway proxy response.
type Response struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       string            `json:"body,omitempty"`
}

// DefaultContentType is used by OK when no content type is given
const DefaultContentType = "text/html"

// OK wraps body in a 200 response. An empty contentType means text/html.
func OK(body, contentType string) Response {
	if contentType == "" {
		contentType = DefaultContentType
	}
	return Response{
		StatusCode: http.StatusOK,
		Headers:    map[string]string{"Content-Type": contentType + "; charset=UTF-8"},
		Body:       body,
	}
}

// Redirect returns a 301 to path
func Redirect(path string) Response {
	return Response{
		StatusCode: http.StatusMovedPermanently,
		Headers:    map[string]string{"Location": path},
	}
}

// Reject returns a bare status with no headers or body
func Reject(statusCode int) Response {
	return Response{StatusCode: statusCode}
}
