// Package demo seeds an embedded DuckDB database with a small medical-claims
// schema so the dev profile exercises the full pipeline without a warehouse.
package demo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/claimscope/claimscope/internal/schema"
)

var seedStatements = []string{
	`CREATE TABLE IF NOT EXISTS asrim_hospitals (
		hosp_code VARCHAR PRIMARY KEY,
		hosp_name VARCHAR NOT NULL,
		district VARCHAR,
		empanelled BOOLEAN DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS asrit_patient (
		patient_id BIGINT PRIMARY KEY,
		patient_name VARCHAR NOT NULL,
		gender VARCHAR,
		age INTEGER,
		ration_card_no VARCHAR,
		district VARCHAR
	)`,
	`CREATE TABLE IF NOT EXISTS asrit_case (
		case_no VARCHAR PRIMARY KEY,
		patient_id BIGINT,
		hosp_code VARCHAR,
		surgery_code VARCHAR,
		admission_date TIMESTAMP,
		discharge_date TIMESTAMP,
		status VARCHAR
	)`,
	`CREATE TABLE IF NOT EXISTS asrit_case_claim (
		claim_id BIGINT PRIMARY KEY,
		case_no VARCHAR,
		claim_date TIMESTAMP,
		preauth_amt_cmo DOUBLE,
		preauth_amt_ceo DOUBLE,
		preauth_amt_trust DOUBLE,
		claim_status VARCHAR
	)`,
	`CREATE TABLE IF NOT EXISTS asrit_case_patient_biometric (
		event_id BIGINT PRIMARY KEY,
		case_no VARCHAR,
		captured_at TIMESTAMP,
		device_id VARCHAR
	)`,
	`CREATE TABLE IF NOT EXISTS asrit_case_surgery (
		surgery_code VARCHAR PRIMARY KEY,
		surgery_name VARCHAR NOT NULL,
		package_amount DOUBLE
	)`,

	`INSERT INTO asrim_hospitals VALUES
		('H001', 'District General Hospital', 'North', TRUE),
		('H002', 'City Care Institute', 'Central', TRUE),
		('H003', 'Rural Medical Centre', 'South', FALSE)
	ON CONFLICT DO NOTHING`,
	`INSERT INTO asrit_patient VALUES
		(1, 'Asha Rao', 'F', 42, 'RC1001', 'North'),
		(2, 'Vikram Singh', 'M', 58, 'RC1002', 'Central'),
		(3, 'Meena Kumari', 'F', 35, 'RC1003', 'South'),
		(4, 'Ravi Teja', 'M', 17, 'RC1004', 'North')
	ON CONFLICT DO NOTHING`,
	`INSERT INTO asrit_case_surgery VALUES
		('S100', 'Maintenance Hemodialysis', 1500),
		('S200', 'Cataract Surgery', 12000)
	ON CONFLICT DO NOTHING`,
	`INSERT INTO asrit_case VALUES
		('C-2024-001', 1, 'H001', 'S100', TIMESTAMP '2024-04-05 09:00:00', TIMESTAMP '2024-04-06 12:00:00', 'DISCHARGED'),
		('C-2024-002', 2, 'H002', 'S200', TIMESTAMP '2024-07-12 10:30:00', TIMESTAMP '2024-07-13 16:00:00', 'DISCHARGED'),
		('C-2025-003', 3, 'H001', 'S100', TIMESTAMP '2025-01-20 08:15:00', NULL, 'ADMITTED'),
		('C-2025-004', 4, 'H003', 'S100', TIMESTAMP '2025-02-02 11:00:00', NULL, 'ADMITTED')
	ON CONFLICT DO NOTHING`,
	`INSERT INTO asrit_case_claim VALUES
		(9001, 'C-2024-001', TIMESTAMP '2024-04-20 00:00:00', 1500, 0, 1400, 'PAID'),
		(9002, 'C-2024-002', TIMESTAMP '2024-08-01 00:00:00', NULL, 11500, 12000, 'PAID'),
		(9003, 'C-2025-003', TIMESTAMP '2025-02-10 00:00:00', NULL, 0, 1500, 'PENDING'),
		(9004, 'C-2025-004', TIMESTAMP '2025-02-15 00:00:00', NULL, NULL, NULL, 'PENDING')
	ON CONFLICT DO NOTHING`,
	`INSERT INTO asrit_case_patient_biometric VALUES
		(1, 'C-2024-001', TIMESTAMP '2024-04-05 09:05:00', 'DEV-01'),
		(2, 'C-2024-001', TIMESTAMP '2024-04-08 09:02:00', 'DEV-01'),
		(3, 'C-2024-001', TIMESTAMP '2024-04-11 09:10:00', 'DEV-02'),
		(4, 'C-2025-003', TIMESTAMP '2025-01-20 08:20:00', 'DEV-03'),
		(5, 'C-2025-003', TIMESTAMP '2025-01-23 08:18:00', 'DEV-03')
	ON CONFLICT DO NOTHING`,
}

// Seed creates and populates the demo claims schema. It is idempotent.
func Seed(ctx context.Context, db *sql.DB) error {
	for _, statement := range seedStatements {
		if _, err := db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("seed demo schema: %w", err)
		}
	}
	return nil
}

// Source is a fixed metadata source describing the demo schema. The biometric
// event table is marked high-cardinality so the row-bound rule is exercised in
// dev exactly as it would be against a real warehouse.
type Source struct{}

func (Source) Load(_ context.Context) ([]schema.Table, error) {
	return []schema.Table{
		{
			Name:        "ASRIT_CASE",
			Description: "Hospitalization cases, one row per admission",
			Columns: []schema.Column{
				{Name: "CASE_NO", Type: schema.TypeText},
				{Name: "PATIENT_ID", Type: schema.TypeNumber},
				{Name: "HOSP_CODE", Type: schema.TypeText},
				{Name: "SURGERY_CODE", Type: schema.TypeText},
				{Name: "ADMISSION_DATE", Type: schema.TypeDate, Nullable: true},
				{Name: "DISCHARGE_DATE", Type: schema.TypeDate, Nullable: true},
				{Name: "STATUS", Type: schema.TypeText},
			},
			EstimatedRows: 4,
		},
		{
			Name:        "ASRIT_PATIENT",
			Description: "Patient master records with demographics and ration card",
			Columns: []schema.Column{
				{Name: "PATIENT_ID", Type: schema.TypeNumber},
				{Name: "PATIENT_NAME", Type: schema.TypeText},
				{Name: "GENDER", Type: schema.TypeText},
				{Name: "AGE", Type: schema.TypeNumber},
				{Name: "RATION_CARD_NO", Type: schema.TypeText},
				{Name: "DISTRICT", Type: schema.TypeText},
			},
			EstimatedRows: 4,
		},
		{
			Name:        "ASRIM_HOSPITALS",
			Description: "Empanelled hospital master",
			Columns: []schema.Column{
				{Name: "HOSP_CODE", Type: schema.TypeText},
				{Name: "HOSP_NAME", Type: schema.TypeText},
				{Name: "DISTRICT", Type: schema.TypeText},
				{Name: "EMPANELLED", Type: schema.TypeBoolean},
			},
			EstimatedRows: 3,
		},
		{
			Name:        "ASRIT_CASE_CLAIM",
			Description: "Claims with preauthorization amounts at CMO, CEO and Trust levels",
			Columns: []schema.Column{
				{Name: "CLAIM_ID", Type: schema.TypeNumber},
				{Name: "CASE_NO", Type: schema.TypeText},
				{Name: "CLAIM_DATE", Type: schema.TypeDate},
				{Name: "PREAUTH_AMT_CMO", Type: schema.TypeNumber, Nullable: true},
				{Name: "PREAUTH_AMT_CEO", Type: schema.TypeNumber, Nullable: true},
				{Name: "PREAUTH_AMT_TRUST", Type: schema.TypeNumber, Nullable: true},
				{Name: "CLAIM_STATUS", Type: schema.TypeText},
			},
			EstimatedRows: 4,
		},
		{
			Name:        "ASRIT_CASE_PATIENT_BIOMETRIC",
			Description: "Biometric capture events, one row per dialysis cycle attendance",
			Columns: []schema.Column{
				{Name: "EVENT_ID", Type: schema.TypeNumber},
				{Name: "CASE_NO", Type: schema.TypeText},
				{Name: "CAPTURED_AT", Type: schema.TypeDate},
				{Name: "DEVICE_ID", Type: schema.TypeText},
			},
			HighCardinality: true,
			EstimatedRows:   5,
		},
		{
			Name:        "ASRIT_CASE_SURGERY",
			Description: "Surgery package master with package amounts",
			Columns: []schema.Column{
				{Name: "SURGERY_CODE", Type: schema.TypeText},
				{Name: "SURGERY_NAME", Type: schema.TypeText},
				{Name: "PACKAGE_AMOUNT", Type: schema.TypeNumber},
			},
			EstimatedRows: 2,
		},
	}, nil
}
