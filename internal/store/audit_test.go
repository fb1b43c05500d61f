// ABOUTME: Tests for audit log store operations
// ABOUTME: Covers Append and List with filtering on both SQLiteStore and MockStore

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func auditStores(t *testing.T) map[string]AuditStore {
	return map[string]AuditStore{
		"sqlite": setupTestStore(t),
		"mock":   NewMockStore(),
	}
}

func TestAuditStore_Append(t *testing.T) {
	for name, s := range auditStores(t) {
		t.Run(name, func(t *testing.T) {
			entry := &AuditEntry{
				ActorID:  500,
				Action:   AuditAddOperator,
				TargetID: 901,
				Detail:   map[string]any{"available": false},
			}
			require.NoError(t, s.AppendAuditLog(context.Background(), entry))

			assert.NotEmpty(t, entry.ID)
			assert.False(t, entry.Timestamp.IsZero())
		})
	}
}

func TestAuditStore_List(t *testing.T) {
	for name, s := range auditStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

			entries := []*AuditEntry{
				{ActorID: 500, Action: AuditAddOperator, TargetID: 901, Timestamp: base},
				{ActorID: 501, Action: AuditAddAdmin, TargetID: 600, Timestamp: base.Add(time.Minute)},
				{ActorID: 500, Action: AuditDeleteOperator, TargetID: 901, Timestamp: base.Add(2 * time.Minute)},
			}
			for _, e := range entries {
				require.NoError(t, s.AppendAuditLog(ctx, e))
			}

			all, err := s.ListAuditLog(ctx, AuditFilter{})
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, AuditDeleteOperator, all[0].Action, "newest first")
			assert.Equal(t, base, all[2].Timestamp)

			actor := int64(500)
			byActor, err := s.ListAuditLog(ctx, AuditFilter{ActorID: &actor})
			require.NoError(t, err)
			assert.Len(t, byActor, 2)

			action := AuditAddAdmin
			byAction, err := s.ListAuditLog(ctx, AuditFilter{Action: &action})
			require.NoError(t, err)
			require.Len(t, byAction, 1)
			assert.Equal(t, int64(600), byAction[0].TargetID)

			since := base.Add(90 * time.Second)
			recent, err := s.ListAuditLog(ctx, AuditFilter{Since: &since})
			require.NoError(t, err)
			assert.Len(t, recent, 1)

			limited, err := s.ListAuditLog(ctx, AuditFilter{Limit: 2})
			require.NoError(t, err)
			assert.Len(t, limited, 2)
		})
	}
}

func TestAuditStore_DetailRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendAuditLog(ctx, &AuditEntry{
		Action: AuditImport,
		Detail: map[string]any{"dir": "/srv/legacy", "clients": 3},
	}))

	got, err := s.ListAuditLog(ctx, AuditFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "/srv/legacy", got[0].Detail["dir"])
	assert.Equal(t, "3", got[0].Detail["clients"].(interface{ String() string }).String())
	assert.Zero(t, got[0].ActorID)
}

func TestNormalizeAuditLimit(t *testing.T) {
	assert.Equal(t, 100, normalizeAuditLimit(0))
	assert.Equal(t, 100, normalizeAuditLimit(-5))
	assert.Equal(t, 20, normalizeAuditLimit(20))
	assert.Equal(t, 1000, normalizeAuditLimit(5000))
}
