package db_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/atinyakov/oroio/internal/db"
)

func TestInitPostgres_ErrorPaths(t *testing.T) {
	cases := []struct {
		name       string
		dsn        string
		wantSubstr string
	}{
		{"invalid DSN", "some=random", "ping postgres"},
		{"empty DSN", "", "ping postgres"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := db.InitPostgres(tc.dsn)
			if err == nil {
				t.Fatalf("InitPostgres(%q) did not return error", tc.dsn)
			}
			if !strings.Contains(err.Error(), tc.wantSubstr) {
				t.Errorf("InitPostgres(%q) error = %q; want substring %q", tc.dsn, err.Error(), tc.wantSubstr)
			}
		})
	}
}

func TestApplySchema(t *testing.T) {
	dbMock, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock database: %v", err)
	}
	defer dbMock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS usage_history").
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := db.ApplySchema(context.Background(), dbMock); err != nil {
		t.Fatalf("ApplySchema: %v", err)
	}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS usage_history").
		WillReturnError(errors.New("permission denied"))
	err = db.ApplySchema(context.Background(), dbMock)
	if err == nil || !strings.Contains(err.Error(), "create schema") {
		t.Errorf("ApplySchema error = %v; want create schema failure", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
