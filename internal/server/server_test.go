package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/alanyoungcy/auctionkiosk/internal/cache/redis"
	"github.com/alanyoungcy/auctionkiosk/internal/clock"
	"github.com/alanyoungcy/auctionkiosk/internal/domain"
	"github.com/alanyoungcy/auctionkiosk/internal/fulfillment"
	"github.com/alanyoungcy/auctionkiosk/internal/identity"
	"github.com/alanyoungcy/auctionkiosk/internal/server/handler"
	"github.com/alanyoungcy/auctionkiosk/internal/server/middleware"
	"github.com/alanyoungcy/auctionkiosk/internal/server/ws"
	"github.com/alanyoungcy/auctionkiosk/internal/service"
	"github.com/alanyoungcy/auctionkiosk/internal/testutil"
)

const apiKey = "kiosk-secret"

type ServerSuite struct {
	suite.Suite
	mini   *miniredis.Miniredis
	redis  *redis.Client
	svc    *service.KioskService
	ts     *httptest.Server
	cancel context.CancelFunc
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(ServerSuite))
}

func (s *ServerSuite) SetupTest() {
	s.mini = miniredis.RunT(s.T())
	s.redis = redis.Wrap(goredis.NewClient(&goredis.Options{Addr: s.mini.Addr()}))

	api := testutil.NewFakeAPI()
	id := identity.New(api, testutil.NopLogger())
	clk := clock.NewManual(time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC))
	placer := fulfillment.NewPlacer(
		fulfillment.NewRegistrar(id, testutil.NopLogger()),
		id,
		clk,
		fulfillment.PlacerConfig{PollInterval: time.Second, MaxPollAttempts: 3},
		testutil.NopLogger(),
	)
	bus := redis.NewSignalBus(s.redis)
	limiter := redis.NewRateLimiter(s.redis)

	n := 0
	s.svc = service.NewKioskService(service.KioskConfig{
		KioskID:          "front-desk",
		DefaultAuctionID: "auction-1",
	}, service.KioskDeps{
		Placer:  placer,
		PIN:     fulfillment.NewPINConfirmer(id, testutil.NopLogger()),
		Locks:   redis.NewLockManager(s.redis),
		Limiter: limiter,
		Bus:     bus,
		Drafts:  redis.NewDraftStore(s.redis),
		Clock:   clk,
		NewID: func() string {
			n++
			return fmt.Sprintf("sess-%d", n)
		},
	}, testutil.NopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	hub := ws.NewHub(bus, testutil.NopLogger(), ws.Config{KioskID: "front-desk", Mode: "stub", Sessions: s.svc.ActiveSessions})
	go func() { _ = hub.Run(ctx) }()
	s.Require().Eventually(func() bool { return s.mini.PubSubNumPat() > 0 }, 2*time.Second, 5*time.Millisecond)

	srv := NewServer(Config{
		CORSOrigins: []string{"https://kiosk.example.com"},
		APIKey:      apiKey,
		RateLimit:   1000,
		RateWindow:  time.Minute,
	}, Handlers{
		Health:   handler.NewHealthHandler(s.svc.ActiveSessions, map[string]handler.Pinger{"redis": s.redis}, testutil.NopLogger()),
		Sessions: handler.NewSessionHandler(s.svc, testutil.NopLogger()),
		Auctions: handler.NewAuctionHandler(s.svc, testutil.NopLogger()),
	}, hub, limiter, testutil.NopLogger())
	s.ts = httptest.NewServer(srv.Handler())
}

func (s *ServerSuite) TearDownTest() {
	s.ts.Close()
	s.cancel()
	s.Require().NoError(s.svc.Shutdown(context.Background()))
	_ = s.redis.Close()
}

func (s *ServerSuite) request(method, path, body string) (*http.Response, map[string]any) {
	var req *http.Request
	var err error
	if body == "" {
		req, err = http.NewRequest(method, s.ts.URL+path, nil)
	} else {
		req, err = http.NewRequest(method, s.ts.URL+path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	s.Require().NoError(err)
	req.Header.Set("X-API-Key", apiKey)

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (s *ServerSuite) TestHealthIsPublic() {
	resp, err := http.Get(s.ts.URL + "/api/health")
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode)
	s.NotEmpty(resp.Header.Get(middleware.RequestIDHeader))
}

func (s *ServerSuite) TestSessionsRequireKey() {
	resp, err := http.Post(s.ts.URL+"/api/sessions", "application/json", nil)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *ServerSuite) TestCORSPreflight() {
	req, err := http.NewRequest(http.MethodOptions, s.ts.URL+"/api/sessions", nil)
	s.Require().NoError(err)
	req.Header.Set("Origin", "https://kiosk.example.com")

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusNoContent, resp.StatusCode)
	s.Equal("https://kiosk.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
}

func (s *ServerSuite) TestBidFlowOverHTTPAndWebSocket() {
	resp, body := s.request(http.MethodPost, "/api/sessions", `{"sale_artwork_id":"lot-1"}`)
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	id := body["session"].(map[string]any)["id"].(string)
	s.Equal("sess-1", id)

	resp, _ = s.request(http.MethodPut, "/api/sessions/"+id+"/details", `{
		"email":"bidder@example.com","password":"hunter22","phone":"5551234",
		"post_code":"10001","name":"Ada Bidder"}`)
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	resp, _ = s.request(http.MethodPut, "/api/sessions/"+id+"/bid", `{"amount":"1250.50"}`)
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	wsURL := "ws" + strings.TrimPrefix(s.ts.URL, "http") + "/ws?session_id=" + id + "&api_key=" + apiKey
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	s.Require().NoError(err)
	defer conn.Close()

	var hello map[string]any
	s.Require().NoError(conn.ReadJSON(&hello))
	s.Equal("kiosk_status", hello["type"])

	resp, _ = s.request(http.MethodPost, "/api/sessions/"+id+"/fulfill", `{"placing_bid":true}`)
	s.Require().Equal(http.StatusAccepted, resp.StatusCode)

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var final domain.SessionEvent
	for final.Kind != domain.EventRunFinished {
		s.Require().NoError(conn.ReadJSON(&final))
		s.Equal(id, final.SessionID)
	}
	s.Equal(fulfillment.HighestBidder.String(), final.Outcome)

	s.Eventually(func() bool {
		_, snap := s.request(http.MethodGet, "/api/sessions/"+id, "")
		return snap["busy"] == false
	}, 2*time.Second, 10*time.Millisecond)

	_, snap := s.request(http.MethodGet, "/api/sessions/"+id, "")
	s.Equal("$1,250.50", snap["bid_amount"])
	s.Equal("High Bid!", snap["presentation"].(map[string]any)["title"])

	resp, _ = s.request(http.MethodDelete, "/api/sessions/"+id, "")
	s.Equal(http.StatusNoContent, resp.StatusCode)
}

func (s *ServerSuite) TestUnknownSession() {
	resp, _ := s.request(http.MethodGet, "/api/sessions/nope", "")
	s.Equal(http.StatusNotFound, resp.StatusCode)
}
