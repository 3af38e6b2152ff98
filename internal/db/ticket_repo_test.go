package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ticketdesk/internal/types"
)

// --- Mock DBTX ---

type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// --- Mock Row ---

type mockRow struct {
	scanErr error
	scanFn  func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.scanFn != nil {
		return r.scanFn(dest...)
	}
	return r.scanErr
}

// --- NextTicketNumber Tests ---

func TestTicketRepository_NextTicketNumber_Formats(t *testing.T) {
	db := new(mockDBTX)
	repo := NewTicketRepository(db)
	ctx := context.Background()

	row := &mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*int64) = 42
			return nil
		},
	}

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"org_1"}).Return(row)

	num, err := repo.NextTicketNumber(ctx, "org_1")
	require.NoError(t, err)
	assert.Equal(t, "TKT-42", num)
	db.AssertExpectations(t)
}

func TestTicketRepository_NextTicketNumber_OrgNotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewTicketRepository(db)
	ctx := context.Background()

	row := &mockRow{scanErr: pgx.ErrNoRows}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(row)

	_, err := repo.NextTicketNumber(ctx, "org_missing")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundOrg, appErr.Code)
	db.AssertExpectations(t)
}

func TestTicketRepository_NextTicketNumber_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewTicketRepository(db)
	ctx := context.Background()

	row := &mockRow{scanErr: errors.New("connection refused")}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(row)

	_, err := repo.NextTicketNumber(ctx, "org_1")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
	db.AssertExpectations(t)
}

// --- GetByID Tests ---

func TestTicketRepository_GetByID_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewTicketRepository(db)
	ctx := context.Background()

	row := &mockRow{scanErr: pgx.ErrNoRows}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(row)

	_, err := repo.GetByID(ctx, "tkt_missing")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundTicket, appErr.Code)
	db.AssertExpectations(t)
}

func TestTicketRepository_GetByID_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewTicketRepository(db)
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	assignee := "user_7"

	row := &mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*string) = "tkt_1"        // id
			*dest[1].(*string) = "org_1"        // organization_id
			*dest[2].(*string) = "TKT-17"       // number
			*dest[3].(*string) = "Printer on fire" // subject
			*dest[4].(*string) = "st_open"      // status_id
			*dest[5].(*string) = "pr_high"      // priority_id
			*dest[6].(*string) = "sla_gold"     // sla_id
			*dest[7].(**string) = &assignee     // assigned_to
			*dest[8].(**string) = nil           // folder_id
			*dest[9].(*string) = "ct_1"         // contact_id
			*dest[10].(**string) = nil          // department_id
			*dest[11].(**string) = nil          // channel_id
			*dest[12].(*string) = "<abc@mail>"  // email_original_message_id
			*dest[13].(*string) = "thr_1"       // email_thread_id
			*dest[14].(**time.Time) = nil       // first_response_due_at
			*dest[15].(**time.Time) = nil       // resolution_due_at
			*dest[16].(**time.Time) = nil       // first_response_at
			*dest[17].(**time.Time) = nil       // resolved_at
			*dest[18].(*time.Time) = now        // created_at
			*dest[19].(*time.Time) = now        // updated_at
			return nil
		},
	}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"tkt_1"}).Return(row)

	ticket, err := repo.GetByID(ctx, "tkt_1")
	require.NoError(t, err)
	assert.Equal(t, "TKT-17", ticket.Number)
	assert.Equal(t, "st_open", ticket.StatusID)
	require.NotNil(t, ticket.AssignedTo)
	assert.Equal(t, "user_7", *ticket.AssignedTo)
	assert.Nil(t, ticket.ResolvedAt)
	db.AssertExpectations(t)
}

// --- Quiet Save Tests ---

func TestTicketRepository_SetResolved_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewTicketRepository(db)
	ctx := context.Background()

	resolvedAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			sql := args.Get(1).(string)
			assert.Contains(t, sql, "resolved_at = $2")
			assert.Contains(t, sql, "folder_id = $3")
		}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.SetResolved(ctx, "tkt_1", resolvedAt, "fld_solved")
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestTicketRepository_Reopen_ClearsResolutionState(t *testing.T) {
	db := new(mockDBTX)
	repo := NewTicketRepository(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			sql := args.Get(1).(string)
			// One statement clears resolved_at, folder and resets status.
			assert.Contains(t, sql, "resolved_at = NULL")
			assert.Contains(t, sql, "folder_id = NULL")
			assert.Contains(t, sql, "status_id = $2")
		}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.Reopen(ctx, "tkt_1", "st_open")
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestTicketRepository_SetFirstResponseAt_OnlyWhenUnset(t *testing.T) {
	db := new(mockDBTX)
	repo := NewTicketRepository(db)
	ctx := context.Background()

	at := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			sql := args.Get(1).(string)
			assert.Contains(t, sql, "first_response_at IS NULL")
		}).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	// UPDATE 0 means the stamp already existed. Not an error.
	err := repo.SetFirstResponseAt(ctx, "tkt_1", at)
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestTicketRepository_SetSLADueDates_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewTicketRepository(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("deadlock"))

	due := time.Now().UTC()
	err := repo.SetSLADueDates(ctx, "tkt_1", &due, &due)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
	db.AssertExpectations(t)
}

func TestTicketRepository_Insert_NullsOptionalColumns(t *testing.T) {
	db := new(mockDBTX)
	repo := NewTicketRepository(db)
	ctx := context.Background()

	ticket := &types.Ticket{
		ID:             "tkt_new",
		OrganizationID: "org_1",
		Number:         "TKT-1",
		Subject:        "Hello",
		StatusID:       "st_open",
		PriorityID:     "pr_normal",
		ContactID:      "ct_1",
	}

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			sqlArgs := args.Get(2).([]any)
			// sla_id is $7, empty string must be written as NULL
			assert.Nil(t, sqlArgs[6])
			// email_original_message_id is $13
			assert.Nil(t, sqlArgs[12])
		}).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := repo.Insert(ctx, ticket)
	require.NoError(t, err)
	db.AssertExpectations(t)
}
