package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/antonkurs/docextract/internal/core/domain"
)

func testDocument() (*domain.StructuredDocument, *domain.ValidationResult) {
	doc := &domain.StructuredDocument{
		Vendor: domain.Party{Name: &domain.ResolvedField{
			FieldName:  domain.FieldVendorName,
			Value:      domain.TextValue("Acme Co."),
			Confidence: 0.9,
		}},
	}
	res := &domain.ValidationResult{
		IsValid:           true,
		OverallConfidence: 0.87,
	}
	return doc, res
}

func TestWriteUpsertsByRunID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectExec("INSERT INTO extracted_documents").
		WithArgs("run-1", sqlmock.AnyArg(), sqlmock.AnyArg(), true, 0.87).
		WillReturnResult(sqlmock.NewResult(0, 1))

	doc, res := testDocument()
	sink := NewSink(db)
	if err := sink.Write(context.Background(), "run-1", doc, res); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestWriteSurfacesDatabaseError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectExec("INSERT INTO extracted_documents").
		WillReturnError(errors.New("connection reset"))

	doc, res := testDocument()
	sink := NewSink(db)
	if err := sink.Write(context.Background(), "run-1", doc, res); err == nil {
		t.Fatal("Write() expected error")
	}
}

func TestEnsureSchemaCreatesTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS extracted_documents").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_extracted_documents_loaded_at").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	sink := NewSink(db)
	if err := sink.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
