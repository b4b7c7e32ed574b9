package interactions

import "testing"

func TestNormalizeDrugName(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"Warfarina 5 mg tabletas", "warfarina"},
		{"ASPIRINA 100 MG", "aspirina"},
		{"Glucophage 850 mg", "metformina"},
		{"Coumadin", "warfarina"},
		{"Losartan 50", "losartan"},
		{"acetaminofen jarabe", "acetaminofen"},
		{"Xanax 0.5 mg", "alprazolam"},
	}
	for _, c := range cases {
		if got := NormalizeDrugName(c.in); got != c.want {
			t.Fatalf("NormalizeDrugName(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestCheckFindsKnownPairOrderIndependent(t *testing.T) {
	t.Parallel()

	a := Check([]string{"Warfarina 5 mg", "Aspirina 100 mg"})
	b := Check([]string{"ASPIRINA", "warfarina"})
	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("expected one interaction each, got %d and %d", len(a), len(b))
	}
	if a[0].Severity != SeverityAlta {
		t.Fatalf("aspirina+warfarina severity = %q", a[0].Severity)
	}
	if a[0].Drugs != b[0].Drugs {
		t.Fatalf("pair must not depend on order: %v vs %v", a[0].Drugs, b[0].Drugs)
	}
}

func TestCheckSortsBySeverity(t *testing.T) {
	t.Parallel()

	found := Check([]string{"levotiroxina", "calcio", "omeprazol", "clopidogrel", "warfarina", "ibuprofeno"})
	if len(found) < 3 {
		t.Fatalf("expected at least three interactions, got %+v", found)
	}
	last := -1
	for _, interaction := range found {
		rank := severityRank(interaction.Severity)
		if rank < last {
			t.Fatalf("interactions out of severity order: %+v", found)
		}
		last = rank
	}
	if found[0].Severity != SeverityAlta {
		t.Fatalf("most severe first, got %q", found[0].Severity)
	}
}

func TestCheckSingleMedication(t *testing.T) {
	t.Parallel()

	if found := Check([]string{"warfarina"}); found != nil {
		t.Fatalf("single medication cannot interact: %+v", found)
	}
}

func TestCheckUnknownPair(t *testing.T) {
	t.Parallel()

	if found := Check([]string{"acetaminofen", "loratadina"}); len(found) != 0 {
		t.Fatalf("unexpected interactions: %+v", found)
	}
}
