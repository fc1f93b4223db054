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

	aliasservice "paymail-bridge/internal/alias/service"
	"paymail-bridge/internal/destination/handler/mocks"
	"paymail-bridge/internal/destination/models"
	"paymail-bridge/pkg/testutil"
)

const testDomain = "bridge.example"

type DestinationHandlerSuite struct {
	suite.Suite
}

func TestDestinationHandlerSuite(t *testing.T) {
	suite.Run(t, new(DestinationHandlerSuite))
}

func newTestRouter(t *testing.T) (http.Handler, *mocks.MockService) {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	mockService := mocks.NewMockService(ctrl)
	r := chi.NewRouter()
	New(mockService, testDomain, models.VariantSimple, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	return r, mockService
}

func (s *DestinationHandlerSuite) TestRoutesSelectVariant() {
	cases := []struct {
		path    string
		variant models.Variant
	}{
		{"/api/paymail/destination/alice@" + testDomain, models.VariantBRC29},
		{"/api/paymail/p2p-destination/alice@" + testDomain, models.VariantSimple},
		{"/api/paymail/address/alice@" + testDomain, models.VariantSimple},
	}
	for _, tc := range cases {
		s.Run(tc.path, func() {
			router, mockService := newTestRouter(s.T())
			terms := &models.Terms{
				Reference: "ref",
				Outputs:   []models.Output{{Satoshis: 5000, Script: "76a9"}},
			}
			mockService.EXPECT().Issue(gomock.Any(), tc.variant, "alice", uint64(5000)).Return(terms, nil)

			rr := testutil.DoRequest(router, testutil.NewJSONRequest(s.T(), http.MethodPost, tc.path, map[string]any{"satoshis": 5000}))

			testutil.AssertStatusOK(s.T(), rr)
			got := testutil.UnmarshalResponse[models.Terms](s.T(), rr)
			assert.Equal(s.T(), *terms, *got)
		})
	}
}

func (s *DestinationHandlerSuite) TestRejectsBadInput() {
	s.Run("foreign domain", func() {
		router, _ := newTestRouter(s.T())
		rr := testutil.DoRequest(router, testutil.NewJSONRequest(s.T(), http.MethodPost,
			"/api/paymail/destination/alice@elsewhere.example", map[string]any{"satoshis": 5000}))
		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
		assert.Equal(s.T(), "Invalid domain", testutil.UnmarshalErrorResponse(s.T(), rr)["error"])
	})

	s.Run("malformed alias", func() {
		router, _ := newTestRouter(s.T())
		rr := testutil.DoRequest(router, testutil.NewJSONRequest(s.T(), http.MethodPost,
			"/api/paymail/p2p-destination/a.b@"+testDomain, map[string]any{"satoshis": 5000}))
		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
		assert.Equal(s.T(), "Invalid alias format", testutil.UnmarshalErrorResponse(s.T(), rr)["error"])
	})

	s.Run("zero satoshis", func() {
		router, _ := newTestRouter(s.T())
		rr := testutil.DoRequest(router, testutil.NewJSONRequest(s.T(), http.MethodPost,
			"/api/paymail/destination/alice@"+testDomain, map[string]any{"satoshis": 0}))
		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	})

	s.Run("negative satoshis", func() {
		router, _ := newTestRouter(s.T())
		rr := testutil.DoRequest(router, testutil.NewJSONRequest(s.T(), http.MethodPost,
			"/api/paymail/destination/alice@"+testDomain, map[string]any{"satoshis": -5}))
		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	})

	s.Run("unknown alias is a 404", func() {
		router, mockService := newTestRouter(s.T())
		mockService.EXPECT().Issue(gomock.Any(), models.VariantBRC29, "ghost", uint64(10)).
			Return(nil, aliasservice.ErrAliasNotFound)
		rr := testutil.DoRequest(router, testutil.NewJSONRequest(s.T(), http.MethodPost,
			"/api/paymail/destination/ghost@"+testDomain, map[string]any{"satoshis": 10}))
		testutil.AssertStatus(s.T(), rr, http.StatusNotFound)
		assert.Equal(s.T(), "Alias not found", testutil.UnmarshalErrorResponse(s.T(), rr)["error"])
	})
}
