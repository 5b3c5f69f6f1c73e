package prompt

// DefaultExamples is the stock few-shot set for the claims warehouse. The
// last example demonstrates the full report shape: multi-table joins,
// prioritized preauth amount, biometric cycle counts and fiscal-year
// derivation.
var DefaultExamples = []Example{
	{
		Question: "How many patients are there?",
		SQL:      "SELECT COUNT(*) FROM asrit_patient;",
	},
	{
		Question: "Show me all patient details for patients older than 18",
		SQL:      "SELECT * FROM asrit_patient WHERE age > 18 LIMIT 1000;",
	},
	{
		Question: "Get patient ID and name for female patients",
		SQL:      "SELECT patient_id, patient_name FROM asrit_patient WHERE gender = 'F' LIMIT 1000;",
	},
	{
		Question: "Show me all patient details for patients older than 18, top 10 rows",
		SQL:      "SELECT * FROM asrit_patient WHERE age > 18 FETCH FIRST 10 ROWS ONLY;",
	},
	{
		Question: "Show me a detailed report for dialysis cases outside the South district, claimed between April 1, 2024 and March 31, 2025, with preauth amount and number of biometric cycles",
		SQL: `SELECT ap.ration_card_no,
       ac.case_no,
       ap.gender,
       ah.hosp_code,
       ah.hosp_name,
       ac.admission_date,
       ac.discharge_date,
       acc.claim_date,
       CASE
         WHEN acc.preauth_amt_cmo IS NOT NULL THEN acc.preauth_amt_cmo
         WHEN acc.preauth_amt_ceo IS NOT NULL AND acc.preauth_amt_ceo <> 0 THEN acc.preauth_amt_ceo
         ELSE acc.preauth_amt_trust
       END AS preauth_amount,
       (SELECT COUNT(*)
          FROM asrit_case_patient_biometric acb
         WHERE acb.case_no = ac.case_no) AS no_of_cycles
  FROM asrit_case ac
  JOIN asrit_case_surgery acs ON acs.surgery_code = ac.surgery_code
  JOIN asrit_patient ap ON ap.patient_id = ac.patient_id
  JOIN asrim_hospitals ah ON ah.hosp_code = ac.hosp_code
  JOIN asrit_case_claim acc ON acc.case_no = ac.case_no
 WHERE acs.surgery_name = 'Maintenance Hemodialysis'
   AND ah.district <> 'South'
   AND acc.claim_date BETWEEN DATE '2024-04-01' AND DATE '2025-03-31'
 LIMIT 1000;`,
	},
}
