package handler

import (
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	aliasmodels "paymail-bridge/internal/alias/models"
	aliasservice "paymail-bridge/internal/alias/service"
	"paymail-bridge/internal/paymail/handler/mocks"
	"paymail-bridge/pkg/testutil"
)

var testConfig = Config{
	Domain:    "bridge.example",
	BaseURL:   "https://api.bridge.example",
	AvatarURL: "https://bridge.example/avatar.png",
	PubKey:    "0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798",
}

type PaymailHandlerSuite struct {
	suite.Suite
}

func TestPaymailHandlerSuite(t *testing.T) {
	suite.Run(t, new(PaymailHandlerSuite))
}

func newTestRouter(t *testing.T) (http.Handler, *mocks.MockResolver) {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	resolver := mocks.NewMockResolver(ctrl)
	r := chi.NewRouter()
	New(resolver, testConfig, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	return r, resolver
}

func (s *PaymailHandlerSuite) TestCapabilities() {
	router, _ := newTestRouter(s.T())
	rr := testutil.DoRequest(router, testutil.NewRequest(s.T(), http.MethodGet, "/.well-known/bsvalias"))

	testutil.AssertStatusOK(s.T(), rr)
	doc := testutil.UnmarshalResponse[CapabilitiesResponse](s.T(), rr)
	assert.Equal(s.T(), "1.0", doc.BSVAlias)
	assert.Equal(s.T(), false, doc.Capabilities["6745385c3fc0"])
	for id, route := range map[string]string{
		"pki":                "pki",
		"paymentDestination": "address",
		"f12f968c92d6":       "profile",
		"2a40af698840":       "destination",
		"5f1323cddf31":       "tx",
		"5c55a7fdb7bb":       "beef",
	} {
		assert.Equal(s.T(), "https://api.bridge.example/api/paymail/"+route+"/{alias}@{domain.tld}", doc.Capabilities[id], id)
	}
}

func (s *PaymailHandlerSuite) TestPKI() {
	router, resolver := newTestRouter(s.T())
	resolver.EXPECT().Resolve(gomock.Any(), "alice").Return(&aliasmodels.AliasRecord{Alias: "alice"}, nil)

	rr := testutil.DoRequest(router, testutil.NewRequest(s.T(), http.MethodGet, "/api/paymail/pki/alice@bridge.example"))

	testutil.AssertStatusOK(s.T(), rr)
	got := testutil.UnmarshalResponse[PKIResponse](s.T(), rr)
	assert.Equal(s.T(), PKIResponse{BSVAlias: "1.0", Handle: "alice@bridge.example", PubKey: testConfig.PubKey}, *got)
}

func (s *PaymailHandlerSuite) TestProfile() {
	router, resolver := newTestRouter(s.T())
	resolver.EXPECT().Resolve(gomock.Any(), "alice").Return(&aliasmodels.AliasRecord{Alias: "alice"}, nil)

	rr := testutil.DoRequest(router, testutil.NewRequest(s.T(), http.MethodGet, "/api/paymail/profile/alice%40bridge.example"))

	testutil.AssertStatusOK(s.T(), rr)
	got := testutil.UnmarshalResponse[ProfileResponse](s.T(), rr)
	assert.Equal(s.T(), ProfileResponse{Name: "alice", Domain: "bridge.example", Avatar: testConfig.AvatarURL}, *got)
}

func (s *PaymailHandlerSuite) TestLookupErrors() {
	s.Run("unknown alias", func() {
		router, resolver := newTestRouter(s.T())
		resolver.EXPECT().Resolve(gomock.Any(), "nobody").Return(nil, aliasservice.ErrAliasNotFound)
		rr := testutil.DoRequest(router, testutil.NewRequest(s.T(), http.MethodGet, "/api/paymail/pki/nobody@bridge.example"))
		testutil.AssertStatus(s.T(), rr, http.StatusNotFound)
	})

	s.Run("foreign domain", func() {
		router, _ := newTestRouter(s.T())
		rr := testutil.DoRequest(router, testutil.NewRequest(s.T(), http.MethodGet, "/api/paymail/profile/alice@elsewhere.example"))
		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
		assert.Equal(s.T(), "Invalid domain", testutil.UnmarshalErrorResponse(s.T(), rr)["error"])
	})
}
