package middleware

import (
	"net/http"

	"github.com/aws/aws-xray-sdk-go/xray"
)

// GetXRayHTTPClient returns an HTTP client instrumented with X-Ray.
// The capability integration clients use this for all outbound requests so
// Slack/GitHub calls show up as downstream traces.
func GetXRayHTTPClient() *http.Client {
	return xray.Client(&http.Client{})
}

// GetCustomXRayHTTPClient returns a custom HTTP client instrumented with X-Ray
// Useful when you need to customize the client (e.g., timeouts, transport)
func GetCustomXRayHTTPClient(client *http.Client) *http.Client {
	return xray.Client(client)
}
