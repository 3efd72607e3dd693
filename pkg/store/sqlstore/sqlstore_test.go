package sqlstore

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/riverline-labs/tenor/pkg/store"
	"github.com/stretchr/testify/require"
)

func TestUpdateEntityState_VersionConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE entity_states").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	s := New(db)
	ctx := context.Background()
	snap, err := s.BeginSnapshot(ctx)
	require.NoError(t, err)

	_, err = snap.UpdateEntityState(ctx, "Order", "order-1", 0, "submitted", "flow-1", "op-1")
	require.ErrorIs(t, err, store.ErrVersionConflict)
	require.NoError(t, snap.Abort(ctx))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateEntityState_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE entity_states").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	s := New(db)
	ctx := context.Background()
	snap, err := s.BeginSnapshot(ctx)
	require.NoError(t, err)

	newVersion, err := snap.UpdateEntityState(ctx, "Order", "order-1", 0, "submitted", "flow-1", "op-1")
	require.NoError(t, err)
	require.Equal(t, int64(1), newVersion)
	require.NoError(t, snap.Commit(ctx))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEntityState_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT entity, instance, state").
		WillReturnRows(sqlmock.NewRows([]string{"entity", "instance", "state", "version", "last_flow_id", "last_operation_id", "updated_at"}))

	s := New(db)
	_, err = s.GetEntityState(context.Background(), "Order", "order-1")
	require.ErrorIs(t, err, store.ErrEntityNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
