package auctionapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/alanyoungcy/auctionkiosk/internal/domain"
)

// Response is a completed HTTP exchange, whatever its status.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// NotFound reports a 404 status.
func (r *Response) NotFound() bool {
	return r.StatusCode == http.StatusNotFound
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("auctionapi: decode response: %w", err)
	}
	return nil
}

// errorBody is the error shape the API returns on rejections.
type errorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Error   string `json:"error"`
	Detail  string `json:"detail"`
}

// Rejection converts a non-2xx response into a *domain.RejectionError
// carrying the server-provided detail. It returns nil for 2xx.
func (r *Response) Rejection() error {
	if r.OK() {
		return nil
	}
	var body errorBody
	_ = json.Unmarshal(r.Body, &body)

	msg := body.Message
	if msg == "" {
		msg = body.Error
	}
	if msg == "" {
		msg = body.Detail
	}
	if msg == "" {
		msg = http.StatusText(r.StatusCode)
	}
	return &domain.RejectionError{
		Status:  r.StatusCode,
		Type:    body.Type,
		Message: msg,
	}
}

type xappTokenResponse struct {
	Token     string `json:"xapp_token"`
	ExpiresIn string `json:"expires_in"`
}

// AccessTokenResponse is the XAuth payload.
type AccessTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// PINResponse is the CreatePINForBidder payload.
type PINResponse struct {
	PIN string `json:"pin"`
}
