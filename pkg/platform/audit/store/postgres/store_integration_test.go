//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	audit "paymail-bridge/pkg/platform/audit"
	"paymail-bridge/pkg/platform/audit/store/postgres"
	"paymail-bridge/pkg/testutil/containers"
)

type PostgresAuditStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.Store
}

func TestPostgresAuditStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresAuditStoreSuite))
}

func (s *PostgresAuditStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = postgres.New(s.postgres.DB)
}

func (s *PostgresAuditStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "audit_events"))
}

func (s *PostgresAuditStoreSuite) TestAppendAndList() {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Microsecond)

	first := audit.Event{
		ID:          uuid.NewString(),
		Timestamp:   base,
		Action:      string(audit.EventAliasRegistered),
		IdentityKey: "02aa",
		Alias:       "alice",
	}
	second := audit.Event{
		ID:          uuid.NewString(),
		Timestamp:   base.Add(time.Second),
		Action:      string(audit.EventSettlementRecorded),
		IdentityKey: "02aa",
		TxID:        "ab12",
		Satoshis:    5000,
	}
	s.Require().NoError(s.store.Append(ctx, first))
	s.Require().NoError(s.store.Append(ctx, second))
	s.Require().NoError(s.store.Append(ctx, second), "replayed event id is ignored")

	events, err := s.store.ListByIdentity(ctx, "02aa")
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(second.ID, events[0].ID)
	s.Equal(uint64(5000), events[0].Satoshis)
	s.Equal(audit.CategoryCompliance, events[1].Category)

	recent, err := s.store.ListRecent(ctx, 1)
	s.Require().NoError(err)
	s.Require().Len(recent, 1)
	s.Equal(string(audit.EventSettlementRecorded), recent[0].Action)
}
