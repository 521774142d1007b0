// Package identity wraps the auction API calls that establish who a bidder
// is: user lookup, creation and update, token exchange, card attachment and
// bidder records. It is the only component that talks to the transport.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/auctionkiosk/internal/domain"
	"github.com/alanyoungcy/auctionkiosk/internal/platform/auctionapi"
)

// Step context strings carried by the errors each operation reports.
const (
	StepCheckEmail    = "Checking email registration failed."
	StepCreateUser    = "Creating user failed."
	StepUpdateUser    = "Updating user failed."
	StepAccessToken   = "Getting Access Token failed."
	StepAddCard       = "Adding Card to User failed"
	StepGetBidders    = "Getting user bidders failed."
	StepRegister      = "Registering for Auction Failed."
	StepCreatePIN     = "Generating a PIN for bidder has failed."
	StepPaddleNumber  = "Getting Bidder ID failed."
	StepPlaceBid      = "Placing bid failed."
	StepBidStatus     = "Checking bid status failed."
	StepSaleArtwork   = "Getting sale artwork failed."
	StepVerifyPIN     = "Logging in with PIN failed."
	StepCreditCards   = "Getting credit cards failed."
	StepBidderDetails = "Sending bidder details failed."
)

// Requester executes auction API endpoints.
type Requester interface {
	Request(ctx context.Context, ep auctionapi.Endpoint, creds domain.Credentials) (*auctionapi.Response, error)
}

// Client performs identity operations against a session. Every method
// reads credentials from the session it is given; there is no shared login
// state.
type Client struct {
	api    Requester
	logger *slog.Logger
}

// New creates an identity Client.
func New(api Requester, logger *slog.Logger) *Client {
	return &Client{
		api:    api,
		logger: logger.With(slog.String("component", "identity")),
	}
}

// call runs one request and maps the result onto the error taxonomy. When ctx
// is cancelled while the request was outstanding the response is discarded.
func (c *Client) call(ctx context.Context, step string, ep auctionapi.Endpoint, creds domain.Credentials) (*auctionapi.Response, error) {
	resp, err := c.api.Request(ctx, ep, creds)
	if err != nil {
		return nil, c.fail(ctx, step, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if rej := resp.Rejection(); rej != nil {
		return nil, c.fail(ctx, step, rej)
	}
	return resp, nil
}

// fail wraps err with the step context and logs it once. Cancellation is
// passed through untouched.
func (c *Client) fail(ctx context.Context, step string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	attrs := []any{slog.String("step", step), slog.String("error", err.Error())}
	var rej *domain.RejectionError
	if errors.As(err, &rej) {
		attrs = append(attrs,
			slog.Int("status", rej.Status),
			slog.String("rejection_type", rej.Type),
			slog.String("rejection_message", rej.Message),
		)
	}
	c.logger.WarnContext(ctx, "auction api step failed", attrs...)
	return &domain.StepError{Step: step, Err: err}
}

func decode[T any](step string, resp *auctionapi.Response) (T, error) {
	var out T
	if err := resp.Decode(&out); err != nil {
		return out, &domain.StepError{Step: step, Err: err}
	}
	return out, nil
}

// EmailExists reports whether a user is registered with email. A 404 means
// no; any other 2xx means yes.
func (c *Client) EmailExists(ctx context.Context, email string) (bool, error) {
	resp, err := c.api.Request(ctx, auctionapi.FindExistingEmailRegistration(email), domain.Credentials{})
	if err != nil {
		return false, c.fail(ctx, StepCheckEmail, err)
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if resp.NotFound() {
		return false, nil
	}
	if rej := resp.Rejection(); rej != nil {
		return false, c.fail(ctx, StepCheckEmail, rej)
	}
	return true, nil
}

// CreateUser creates a user from the session's collected details and then
// authenticates as that user.
func (c *Client) CreateUser(ctx context.Context, sess *domain.Session) error {
	u := sess.NewUser
	if u.Email == "" || u.Password == "" {
		return &domain.StepError{Step: StepCreateUser, Err: fmt.Errorf("email and password: %w", domain.ErrMissingField)}
	}
	ep := auctionapi.CreateUser(u.Email, u.Password, u.Phone, u.PostCode, u.Name)
	if _, err := c.call(ctx, StepCreateUser, ep, domain.Credentials{}); err != nil {
		return err
	}
	return c.Authenticate(ctx, sess)
}

// Authenticate exchanges the session's email and password for an access
// token and stores it on the session.
func (c *Client) Authenticate(ctx context.Context, sess *domain.Session) error {
	u := sess.NewUser
	if u.Email == "" || u.Password == "" {
		return &domain.StepError{Step: StepAccessToken, Err: fmt.Errorf("email and password: %w", domain.ErrMissingField)}
	}
	resp, err := c.call(ctx, StepAccessToken, auctionapi.XAuth(u.Email, u.Password), domain.Credentials{})
	if err != nil {
		return err
	}
	tok, err := decode[auctionapi.AccessTokenResponse](StepAccessToken, resp)
	if err != nil {
		return err
	}
	if tok.AccessToken == "" {
		return &domain.StepError{Step: StepAccessToken, Err: errors.New("empty access token")}
	}
	sess.AccessToken = tok.AccessToken
	return nil
}

// EnsureAuthenticated authenticates only when the session holds no user
// credentials yet.
func (c *Client) EnsureAuthenticated(ctx context.Context, sess *domain.Session) error {
	if sess.Credentials().Authenticated() {
		return nil
	}
	return c.Authenticate(ctx, sess)
}

// UpdateUser pushes the session's collected details to the existing user,
// authenticating first when needed.
func (c *Client) UpdateUser(ctx context.Context, sess *domain.Session) error {
	if err := c.EnsureAuthenticated(ctx, sess); err != nil {
		return err
	}
	u := sess.NewUser
	ep := auctionapi.UpdateMe(u.Email, u.Phone, u.PostCode, u.Name)
	_, err := c.call(ctx, StepUpdateUser, ep, sess.Credentials())
	return err
}

// AttachCard attaches the pending card token, if any, and clears it once
// the API accepts it so it is never submitted twice.
func (c *Client) AttachCard(ctx context.Context, sess *domain.Session) error {
	if !sess.NewUser.HasPendingCard() {
		return nil
	}
	creds := sess.Credentials()
	if !creds.Authenticated() {
		return &domain.StepError{Step: StepAddCard, Err: domain.ErrNotAuthenticated}
	}
	ep := auctionapi.RegisterCard(sess.NewUser.CreditCardToken, sess.NewUser.SwipedCreditCard)
	if _, err := c.call(ctx, StepAddCard, ep, creds); err != nil {
		return err
	}
	sess.NewUser.CreditCardToken = ""
	return nil
}

// FetchBiddersForAuction lists the authenticated user's bidder records on
// the session's auction.
func (c *Client) FetchBiddersForAuction(ctx context.Context, sess *domain.Session) ([]domain.Bidder, error) {
	resp, err := c.call(ctx, StepGetBidders, auctionapi.MyBiddersForAuction(sess.AuctionID), sess.Credentials())
	if err != nil {
		return nil, err
	}
	return decode[[]domain.Bidder](StepGetBidders, resp)
}

// RegisterToAuction creates a bidder record and marks the session's user as
// newly registered.
func (c *Client) RegisterToAuction(ctx context.Context, sess *domain.Session) (domain.Bidder, error) {
	resp, err := c.call(ctx, StepRegister, auctionapi.RegisterToBid(sess.AuctionID), sess.Credentials())
	if err != nil {
		return domain.Bidder{}, err
	}
	bidder, err := decode[domain.Bidder](StepRegister, resp)
	if err != nil {
		return domain.Bidder{}, err
	}
	if bidder.ID == "" {
		return domain.Bidder{}, &domain.StepError{Step: StepRegister, Err: errors.New("empty bidder id")}
	}
	sess.SetBidderID(bidder.ID)
	sess.NewUser.HasBeenRegistered = true
	return bidder, nil
}

// CreatePIN issues a PIN for the session's bidder.
func (c *Client) CreatePIN(ctx context.Context, sess *domain.Session) (string, error) {
	if sess.BidderID == "" {
		return "", &domain.StepError{Step: StepCreatePIN, Err: domain.ErrNoBidder}
	}
	resp, err := c.call(ctx, StepCreatePIN, auctionapi.CreatePINForBidder(sess.BidderID), sess.Credentials())
	if err != nil {
		return "", err
	}
	pin, err := decode[auctionapi.PINResponse](StepCreatePIN, resp)
	if err != nil {
		return "", err
	}
	sess.SetBidderPIN(pin.PIN)
	return pin.PIN, nil
}

// FetchPaddleNumber reads the user's profile and records the paddle number.
func (c *Client) FetchPaddleNumber(ctx context.Context, sess *domain.Session) (string, error) {
	resp, err := c.call(ctx, StepPaddleNumber, auctionapi.Me(), sess.Credentials())
	if err != nil {
		return "", err
	}
	user, err := decode[domain.User](StepPaddleNumber, resp)
	if err != nil {
		return "", err
	}
	sess.PaddleNumber = user.PaddleNumber
	return user.PaddleNumber, nil
}

// PlaceBid submits the session's bid amount as a maximum bid on its lot.
func (c *Client) PlaceBid(ctx context.Context, sess *domain.Session) (domain.BidderPosition, error) {
	if sess.BidderID == "" {
		return domain.BidderPosition{}, &domain.StepError{Step: StepPlaceBid, Err: domain.ErrNoBidder}
	}
	if sess.BidAmountCents <= 0 {
		return domain.BidderPosition{}, &domain.StepError{Step: StepPlaceBid, Err: fmt.Errorf("bid amount: %w", domain.ErrMissingField)}
	}
	ep := auctionapi.PlaceABid(sess.AuctionID, sess.SaleArtworkID, sess.BidAmountCents)
	resp, err := c.call(ctx, StepPlaceBid, ep, sess.Credentials())
	if err != nil {
		return domain.BidderPosition{}, err
	}
	return decode[domain.BidderPosition](StepPlaceBid, resp)
}

// BidPosition reads the current state of a placed position.
func (c *Client) BidPosition(ctx context.Context, sess *domain.Session, positionID string) (domain.BidderPosition, error) {
	resp, err := c.call(ctx, StepBidStatus, auctionapi.MyBidPosition(positionID), sess.Credentials())
	if err != nil {
		return domain.BidderPosition{}, err
	}
	return decode[domain.BidderPosition](StepBidStatus, resp)
}

// SaleArtwork reads the session's lot.
func (c *Client) SaleArtwork(ctx context.Context, sess *domain.Session) (domain.SaleArtwork, error) {
	resp, err := c.call(ctx, StepSaleArtwork, auctionapi.SaleArtwork(sess.AuctionID, sess.SaleArtworkID), domain.Credentials{})
	if err != nil {
		return domain.SaleArtwork{}, err
	}
	return decode[domain.SaleArtwork](StepSaleArtwork, resp)
}

// VerifyPIN logs in with the session's phone number and the given bidder
// PIN. On success the PIN credentials are stored on the session; on failure
// the session is left untouched.
func (c *Client) VerifyPIN(ctx context.Context, sess *domain.Session, pin string) (domain.User, error) {
	if pin == "" || sess.NewUser.Phone == "" {
		return domain.User{}, &domain.StepError{Step: StepVerifyPIN, Err: fmt.Errorf("pin and phone: %w", domain.ErrMissingField)}
	}
	login := &domain.PINLogin{PIN: pin, Number: sess.NewUser.Phone, SaleID: sess.AuctionID}
	resp, err := c.call(ctx, StepVerifyPIN, auctionapi.Me(), domain.Credentials{PIN: login})
	if err != nil {
		return domain.User{}, err
	}
	user, err := decode[domain.User](StepVerifyPIN, resp)
	if err != nil {
		return domain.User{}, err
	}
	sess.PINLogin = login
	sess.SetBidderPIN(pin)
	if user.PaddleNumber != "" {
		sess.PaddleNumber = user.PaddleNumber
	}
	return user, nil
}

// CreditCards lists the cards on file for the session's user.
func (c *Client) CreditCards(ctx context.Context, sess *domain.Session) ([]domain.Card, error) {
	resp, err := c.call(ctx, StepCreditCards, auctionapi.MyCreditCards(), sess.Credentials())
	if err != nil {
		return nil, err
	}
	return decode[[]domain.Card](StepCreditCards, resp)
}

// SendBidderDetails asks the API to send the bidder their details for an
// auction. identifier is an email address or phone number.
func (c *Client) SendBidderDetails(ctx context.Context, auctionID, identifier string) error {
	if auctionID == "" || identifier == "" {
		return &domain.StepError{Step: StepBidderDetails, Err: fmt.Errorf("auction and identifier: %w", domain.ErrMissingField)}
	}
	_, err := c.call(ctx, StepBidderDetails, auctionapi.BidderDetailsNotification(auctionID, identifier), domain.Credentials{})
	return err
}
