package auctionapi

import (
	"fmt"
	"net/http"
	"net/url"
)

// AuthMode selects which credentials a request carries.
type AuthMode int

const (
	// AuthNone sends no token at all (used by the token endpoints themselves).
	AuthNone AuthMode = iota
	// AuthApp sends only the application token.
	AuthApp
	// AuthUser sends the application token plus user credentials.
	AuthUser
)

// Endpoint names. They double as keys for the stub and for test scripting.
const (
	NameXApp                          = "XApp"
	NameXAuth                         = "XAuth"
	NameFindExistingEmailRegistration = "FindExistingEmailRegistration"
	NameCreateUser                    = "CreateUser"
	NameUpdateMe                      = "UpdateMe"
	NameRegisterCard                  = "RegisterCard"
	NameMyCreditCards                 = "MyCreditCards"
	NameMyBiddersForAuction           = "MyBiddersForAuction"
	NameRegisterToBid                 = "RegisterToBid"
	NameCreatePINForBidder            = "CreatePINForBidder"
	NameMe                            = "Me"
	NameBidderDetailsNotification     = "BidderDetailsNotification"
	NamePlaceABid                     = "PlaceABid"
	NameMyBidPosition                 = "MyBidPosition"
	NameSaleArtwork                   = "SaleArtwork"
)

// Endpoint describes one call against the auction API.
type Endpoint struct {
	Name   string
	Method string
	Path   string
	Query  url.Values
	Body   any
	Auth   AuthMode
}

type locationBody struct {
	PostalCode string `json:"postal_code"`
}

type userBody struct {
	Email    string        `json:"email,omitempty"`
	Password string        `json:"password,omitempty"`
	Phone    string        `json:"phone,omitempty"`
	Name     string        `json:"name,omitempty"`
	Location *locationBody `json:"location,omitempty"`
}

func location(postCode string) *locationBody {
	if postCode == "" {
		return nil
	}
	return &locationBody{PostalCode: postCode}
}

// XApp fetches an application token. Client id and secret are added by the
// client.
func XApp() Endpoint {
	return Endpoint{Name: NameXApp, Method: http.MethodGet, Path: "/api/v1/xapp_token", Auth: AuthNone}
}

// XAuth exchanges email and password for a user access token.
func XAuth(email, password string) Endpoint {
	q := url.Values{}
	q.Set("email", email)
	q.Set("password", password)
	q.Set("grant_type", "credentials")
	q.Set("scope", "offline_access")
	return Endpoint{Name: NameXAuth, Method: http.MethodGet, Path: "/oauth2/access_token", Query: q, Auth: AuthNone}
}

// FindExistingEmailRegistration answers 404 when no user has the email.
func FindExistingEmailRegistration(email string) Endpoint {
	q := url.Values{}
	q.Set("email", email)
	return Endpoint{Name: NameFindExistingEmailRegistration, Method: http.MethodHead, Path: "/api/v1/user", Query: q, Auth: AuthApp}
}

func CreateUser(email, password, phone, postCode, name string) Endpoint {
	return Endpoint{
		Name:   NameCreateUser,
		Method: http.MethodPost,
		Path:   "/api/v1/user",
		Body: userBody{
			Email:    email,
			Password: password,
			Phone:    phone,
			Name:     name,
			Location: location(postCode),
		},
		Auth: AuthApp,
	}
}

func UpdateMe(email, phone, postCode, name string) Endpoint {
	return Endpoint{
		Name:   NameUpdateMe,
		Method: http.MethodPut,
		Path:   "/api/v1/me",
		Body: userBody{
			Email:    email,
			Phone:    phone,
			Name:     name,
			Location: location(postCode),
		},
		Auth: AuthUser,
	}
}

// RegisterCard attaches a tokenized card. Swiped cards are flagged as
// created by a trusted client.
func RegisterCard(stripeToken string, swiped bool) Endpoint {
	return Endpoint{
		Name:   NameRegisterCard,
		Method: http.MethodPost,
		Path:   "/api/v1/me/credit_cards",
		Body: map[string]any{
			"provider":                  "stripe",
			"token":                     stripeToken,
			"created_by_trusted_client": swiped,
		},
		Auth: AuthUser,
	}
}

func MyCreditCards() Endpoint {
	return Endpoint{Name: NameMyCreditCards, Method: http.MethodGet, Path: "/api/v1/me/credit_cards", Auth: AuthUser}
}

func MyBiddersForAuction(auctionID string) Endpoint {
	q := url.Values{}
	q.Set("sale_id", auctionID)
	return Endpoint{Name: NameMyBiddersForAuction, Method: http.MethodGet, Path: "/api/v1/me/bidders", Query: q, Auth: AuthUser}
}

func RegisterToBid(auctionID string) Endpoint {
	return Endpoint{
		Name:   NameRegisterToBid,
		Method: http.MethodPost,
		Path:   "/api/v1/bidder",
		Body:   map[string]string{"sale_id": auctionID},
		Auth:   AuthUser,
	}
}

func CreatePINForBidder(bidderID string) Endpoint {
	return Endpoint{
		Name:   NameCreatePINForBidder,
		Method: http.MethodPost,
		Path:   fmt.Sprintf("/api/v1/bidder/%s/pin", url.PathEscape(bidderID)),
		Auth:   AuthUser,
	}
}

func Me() Endpoint {
	return Endpoint{Name: NameMe, Method: http.MethodGet, Path: "/api/v1/me", Auth: AuthUser}
}

// BidderDetailsNotification asks the API to send a bidder their details.
// identifier is an email address or phone number.
func BidderDetailsNotification(auctionID, identifier string) Endpoint {
	return Endpoint{
		Name:   NameBidderDetailsNotification,
		Method: http.MethodPost,
		Path:   "/api/v1/bidder/bidding_details_notification",
		Body:   map[string]string{"sale_id": auctionID, "identifier": identifier},
		Auth:   AuthApp,
	}
}

func PlaceABid(auctionID, artworkID string, maxBidCents int64) Endpoint {
	return Endpoint{
		Name:   NamePlaceABid,
		Method: http.MethodPost,
		Path:   "/api/v1/me/bidder_position",
		Body: map[string]any{
			"sale_id":              auctionID,
			"artwork_id":           artworkID,
			"max_bid_amount_cents": maxBidCents,
		},
		Auth: AuthUser,
	}
}

func MyBidPosition(positionID string) Endpoint {
	return Endpoint{
		Name:   NameMyBidPosition,
		Method: http.MethodGet,
		Path:   fmt.Sprintf("/api/v1/me/bidder_position/%s", url.PathEscape(positionID)),
		Auth:   AuthUser,
	}
}

func SaleArtwork(auctionID, artworkID string) Endpoint {
	return Endpoint{
		Name:   NameSaleArtwork,
		Method: http.MethodGet,
		Path:   fmt.Sprintf("/api/v1/sale/%s/sale_artwork/%s", url.PathEscape(auctionID), url.PathEscape(artworkID)),
		Auth:   AuthApp,
	}
}
