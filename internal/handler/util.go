package handler

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
)

// Attempt cookie names and lifetime.
const (
	StateCookie    = "oauth_state"
	VerifierCookie = "oauth_verifier"
	AttemptMaxAge  = 10 * time.Minute
)

// ErrInvalidRequest means the caller sent a malformed request.
var ErrInvalidRequest = errors.New("handler: invalid request")

// CookieConfig controls the attributes of every cookie the handlers set.
type CookieConfig struct {
	SessionName   string
	SessionMaxAge time.Duration
	Secure        bool
}

func (c CookieConfig) cookie(name, value string, maxAge time.Duration) string {
	return (&http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge / time.Second),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}).String()
}

// expired returns a Set-Cookie value that deletes name.
func (c CookieConfig) expired(name string) string {
	return (&http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}).String()
}

func (c CookieConfig) session(value string) string {
	return c.cookie(c.SessionName, value, c.SessionMaxAge)
}

// getHeader looks a header up case-insensitively.
func getHeader(req events.APIGatewayProxyRequest, name string) string {
	for k, v := range req.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	for k, v := range req.MultiValueHeaders {
		if strings.EqualFold(k, name) && len(v) > 0 {
			return strings.Join(v, "; ")
		}
	}
	return ""
}

// getCookie returns the value of the named request cookie, or "".
func getCookie(req events.APIGatewayProxyRequest, name string) string {
	header := getHeader(req, "Cookie")
	if header == "" {
		return ""
	}
	cookies, err := http.ParseCookie(header)
	if err != nil {
		// One malformed pair must not hide the others.
		for _, part := range strings.Split(header, ";") {
			k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
			if ok && k == name {
				return v
			}
		}
		return ""
	}
	for _, c := range cookies {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// body returns the raw request body, decoding API Gateway's base64 form.
func body(req events.APIGatewayProxyRequest) ([]byte, error) {
	if !req.IsBase64Encoded {
		return []byte(req.Body), nil
	}
	b, err := base64.StdEncoding.DecodeString(req.Body)
	if err != nil {
		return nil, errors.Join(ErrInvalidRequest, err)
	}
	return b, nil
}

// jsonObject reads the body as a JSON object.
func jsonObject(req events.APIGatewayProxyRequest) (map[string]json.RawMessage, error) {
	raw, err := body(req)
	if err != nil {
		return nil, err
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return nil, ErrInvalidRequest
	}
	return obj, nil
}

// formValues reads an application/x-www-form-urlencoded body.
func formValues(req events.APIGatewayProxyRequest) (url.Values, error) {
	raw, err := body(req)
	if err != nil {
		return nil, err
	}
	values, err := url.ParseQuery(string(raw))
	if err != nil {
		return nil, errors.Join(ErrInvalidRequest, err)
	}
	return values, nil
}

func jsonResponse(status int, v any) events.APIGatewayProxyResponse {
	b, err := json.Marshal(v)
	if err != nil {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError, Body: "Internal Server Error"}
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Body:       string(b),
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

func errorResponse(status int, msg string) events.APIGatewayProxyResponse {
	return jsonResponse(status, map[string]string{"error": msg})
}

func redirect(location string, cookies ...string) events.APIGatewayProxyResponse {
	resp := events.APIGatewayProxyResponse{
		StatusCode: http.StatusFound,
		Headers:    map[string]string{"Location": location},
	}
	if len(cookies) > 0 {
		resp.MultiValueHeaders = map[string][]string{"Set-Cookie": cookies}
	}
	return resp
}

func withCookies(resp events.APIGatewayProxyResponse, cookies ...string) events.APIGatewayProxyResponse {
	if len(cookies) == 0 {
		return resp
	}
	if resp.MultiValueHeaders == nil {
		resp.MultiValueHeaders = make(map[string][]string)
	}
	resp.MultiValueHeaders["Set-Cookie"] = append(resp.MultiValueHeaders["Set-Cookie"], cookies...)
	return resp
}
