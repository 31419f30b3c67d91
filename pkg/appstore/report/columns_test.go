package report

import "testing"

func TestColumnsResolvesSynonyms(t *testing.T) {
	cols := DefaultColumns()

	usage := Row{"Total Downloads": "10", "Unique Devices": "42"}
	if got := cols.Int(usage, "downloads"); got != 10 {
		t.Errorf("expected downloads 10, got %d", got)
	}
	if got := cols.Int(usage, "activeDevices"); got != 42 {
		t.Errorf("expected active devices 42, got %d", got)
	}

	engagement := Row{"Impressions Unique Device": "500", "Product Page Views": "77"}
	if got := cols.Int(engagement, "impressions"); got != 500 {
		t.Errorf("expected impressions 500, got %d", got)
	}
	if got := cols.Int(engagement, "pageViews"); got != 77 {
		t.Errorf("expected page views 77, got %d", got)
	}
}

func TestColumnsMissingFieldDefaults(t *testing.T) {
	cols := DefaultColumns()
	row := Row{"Title": "Widget"}

	if got := cols.Int(row, "units"); got != 0 {
		t.Errorf("missing units must default to 0, got %d", got)
	}
	if got := cols.Float(row, "proceeds"); got != 0 {
		t.Errorf("missing proceeds must default to 0, got %f", got)
	}
	if got := cols.Text(row, "country"); got != "" {
		t.Errorf("missing country must be empty, got %q", got)
	}
}

func TestColumnsFloatAndIntParsing(t *testing.T) {
	cols := DefaultColumns()
	row := Row{"Units": "3.0", "Developer Proceeds": "1.75"}

	if got := cols.Int(row, "units"); got != 3 {
		t.Errorf("expected float-formatted count to parse as 3, got %d", got)
	}
	if got := cols.Float(row, "proceeds"); got != 1.75 {
		t.Errorf("expected proceeds 1.75, got %f", got)
	}
}

func TestProductTypeClassification(t *testing.T) {
	cols := DefaultColumns()

	for _, pt := range []string{"1", "1F", "1T", "F1"} {
		if !cols.IsFirstDownload(pt) {
			t.Errorf("expected %q to classify as first download", pt)
		}
	}
	for _, pt := range []string{"3", "3F", "3T"} {
		if !cols.IsRedownload(pt) {
			t.Errorf("expected %q to classify as redownload", pt)
		}
	}
	if cols.IsFirstDownload("IA1") || cols.IsRedownload("IA1") {
		t.Error("in-app purchases are neither downloads nor redownloads")
	}
}

func TestParseColumnsRejectsEmptyTable(t *testing.T) {
	if _, err := ParseColumns([]byte("productTypes: {}")); err == nil {
		t.Fatal("expected empty field table to be rejected")
	}
}
