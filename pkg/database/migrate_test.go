package database

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestApplySchemaCreatesUsageTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS ai_usage_records").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := ApplySchema(context.Background(), db, quietLogger()); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestApplySchemaPropagatesExecError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS ai_usage_records").
		WillReturnError(context.DeadlineExceeded)

	if err := ApplySchema(context.Background(), db, quietLogger()); err == nil {
		t.Fatal("expected an error when the schema statement fails")
	}
}
