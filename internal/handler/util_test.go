package handler

import (
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
)

func TestGetCookie(t *testing.T) {
	req := events.APIGatewayProxyRequest{Headers: map[string]string{
		"cookie": "theme=dark; fanvue_oauth=abc.def.ghi; oauth_state=s1",
	}}

	assert.Equal(t, "abc.def.ghi", getCookie(req, "fanvue_oauth"))
	assert.Equal(t, "s1", getCookie(req, "oauth_state"))
	assert.Empty(t, getCookie(req, "missing"))
	assert.Empty(t, getCookie(events.APIGatewayProxyRequest{}, "fanvue_oauth"))
}

func TestGetCookie_MultiValueHeaders(t *testing.T) {
	req := events.APIGatewayProxyRequest{MultiValueHeaders: map[string][]string{
		"Cookie": {"a=1", "fanvue_oauth=v"},
	}}
	assert.Equal(t, "v", getCookie(req, "fanvue_oauth"))
}

func TestCookieConfig(t *testing.T) {
	c := CookieConfig{SessionName: "fanvue_oauth", SessionMaxAge: 3600e9, Secure: false}

	set, err := http.ParseSetCookie(c.session("value-1"))
	assert.NoError(t, err)
	assert.Equal(t, "value-1", set.Value)
	assert.Equal(t, 3600, set.MaxAge)
	assert.False(t, set.Secure)
	assert.True(t, set.HttpOnly)

	gone, err := http.ParseSetCookie(c.expired("fanvue_oauth"))
	assert.NoError(t, err)
	assert.Equal(t, -1, gone.MaxAge)
}

func TestJSONObject(t *testing.T) {
	_, err := jsonObject(events.APIGatewayProxyRequest{Body: `{"a":1}`})
	assert.NoError(t, err)

	_, err = jsonObject(events.APIGatewayProxyRequest{Body: "e30=", IsBase64Encoded: true})
	assert.NoError(t, err)

	for _, body := range []string{"", "[]", "null", "1"} {
		_, err = jsonObject(events.APIGatewayProxyRequest{Body: body})
		assert.ErrorIs(t, err, ErrInvalidRequest, "body %q", body)
	}

	_, err = jsonObject(events.APIGatewayProxyRequest{Body: "%%%", IsBase64Encoded: true})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}
