package schema

import (
	"reflect"
	"testing"
	"time"
)

func claimsCatalog() *Catalog {
	return NewCatalog(1, time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), []Table{
		{
			Name:        "ASRIT_CASE",
			Description: "Hospitalization cases",
			Columns: []Column{
				{Name: "CASE_NO", Type: TypeText},
				{Name: "ADMISSION_DATE", Type: TypeDate},
			},
		},
		{
			Name:        "ASRIT_PATIENT",
			Description: "Patient master records",
			Columns: []Column{
				{Name: "PATIENT_NAME", Type: TypeText},
				{Name: "GENDER", Type: TypeText},
				{Name: "RATION_CARD_NO", Type: TypeText},
			},
		},
		{
			Name:        "ASRIM_HOSPITALS",
			Description: "Empanelled hospital master",
			Columns: []Column{
				{Name: "HOSP_NAME", Type: TypeText},
				{Name: "DISTRICT", Type: TypeText},
			},
		},
	})
}

func TestKeywordSelectorIsDeterministic(t *testing.T) {
	catalog := claimsCatalog()
	selector := NewKeywordSelector()

	first := selector.Select("how many patients per hospital", catalog, 2)
	second := selector.Select("how many patients per hospital", catalog, 2)

	if !reflect.DeepEqual(first.TableNames(), second.TableNames()) {
		t.Fatalf("selections differ: %v vs %v", first.TableNames(), second.TableNames())
	}
	if first.Epoch != catalog.Epoch {
		t.Fatalf("Epoch = %d, want %d", first.Epoch, catalog.Epoch)
	}
}

func TestKeywordSelectorRanksRelevantTables(t *testing.T) {
	catalog := claimsCatalog()
	selector := NewKeywordSelector()

	selection := selector.Select("list female patients with ration card", catalog, 1)
	names := selection.TableNames()
	if len(names) != 1 || names[0] != "ASRIT_PATIENT" {
		t.Fatalf("selection = %v, want [ASRIT_PATIENT]", names)
	}
}

func TestKeywordSelectorNeverEmptyForNonEmptyCatalog(t *testing.T) {
	catalog := claimsCatalog()
	selector := NewKeywordSelector()

	selection := selector.Select("zzz qqq completely unrelated", catalog, 2)
	if len(selection.Tables) != 2 {
		t.Fatalf("len(Tables) = %d, want 2", len(selection.Tables))
	}
}

func TestKeywordSelectorTiesBreakByDeclarationOrder(t *testing.T) {
	catalog := claimsCatalog()
	selector := NewKeywordSelector()

	// A question matching nothing scores every table equally.
	selection := selector.Select("zzz", catalog, 2)
	names := selection.TableNames()
	want := []string{"ASRIT_CASE", "ASRIT_PATIENT"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("selection = %v, want %v", names, want)
	}
}

func TestKeywordSelectorClampsTopK(t *testing.T) {
	catalog := claimsCatalog()
	selector := NewKeywordSelector()

	if got := len(selector.Select("patients", catalog, 100).Tables); got != catalog.Len() {
		t.Fatalf("len = %d, want %d", got, catalog.Len())
	}
	if got := len(selector.Select("patients", catalog, 0).Tables); got != 1 {
		t.Fatalf("len = %d, want 1", got)
	}
}

func TestKeywordSelectorEmptyCatalog(t *testing.T) {
	selector := NewKeywordSelector()
	if got := selector.Select("patients", nil, 3); len(got.Tables) != 0 {
		t.Fatalf("expected empty selection, got %v", got.TableNames())
	}
}
