package transformer

import (
	"reflect"
	"testing"
	"time"

	"epiviz/internal/config"
	"epiviz/internal/schema"
)

func defaultStar(t testing.TB) (schema.Star, config.Settings) {
	t.Helper()
	d := config.Defaults()
	star, err := schema.Build(d.Tables, d.Transform.NumericColumns)
	if err != nil {
		t.Fatalf("schema.Build: %v", err)
	}
	return star, d
}

func newBuilder(t testing.TB) *StarBuilder {
	t.Helper()
	star, d := defaultStar(t)
	b, err := NewStarBuilder(star, StarOptions{
		Measures:     d.Transform.NumericColumns,
		MissingValue: -1,
		DateLayout:   "2006-01-02",
	})
	if err != nil {
		t.Fatalf("NewStarBuilder: %v", err)
	}
	return b
}

func obs(pandemic, day, country, province string, confirmed int64) Observation {
	d, _ := time.Parse("2006-01-02", day)
	o := Observation{Pandemic: pandemic, Date: d, Country: country, Province: province}
	o.SetMeasure(MeasureConfirmed, confirmed)
	return o
}

func TestStarBuilder_Tables(t *testing.T) {
	t.Parallel()

	b := newBuilder(t)
	b.DescribePandemic("COVID-19", "Coronavirus disease 2019")

	first := obs("COVID-19", "2020-01-23", "France", "", 3)
	first.Continent = "Europe"
	b.Add(first)
	late := obs("COVID-19", "2020-01-22", "France", "", 1)
	late.WHORegion = "Europe"
	b.Add(late)
	b.Add(obs("Mpox", "2020-01-22", "France", "", 0))
	if b.Add(obs("COVID-19", "2020-01-23", "France", "", 99)) {
		t.Fatal("duplicate fact accepted")
	}

	calendar, err := b.Rows("calendar")
	if err != nil {
		t.Fatal(err)
	}
	wantCal := [][]string{
		{"20200122", "2020-01-22", "2020", "1", "22"},
		{"20200123", "2020-01-23", "2020", "1", "23"},
	}
	if !reflect.DeepEqual(calendar, wantCal) {
		t.Fatalf("calendar = %v, want %v", calendar, wantCal)
	}

	loc, _ := b.Rows("location")
	wantLoc := [][]string{{"1", "France", "", "Europe", "", "", "Europe"}}
	if !reflect.DeepEqual(loc, wantLoc) {
		t.Fatalf("location = %v, want %v", loc, wantLoc)
	}

	pan, _ := b.Rows("pandemie")
	wantPan := [][]string{{"1", "COVID-19", "Coronavirus disease 2019"}, {"2", "Mpox", ""}}
	if !reflect.DeepEqual(pan, wantPan) {
		t.Fatalf("pandemie = %v, want %v", pan, wantPan)
	}

	data, _ := b.Rows("data")
	wantData := [][]string{
		{"1", "20200123", "1", "1", "3", "-1", "-1", "-1", "-1", "-1"},
		{"2", "20200122", "1", "1", "1", "-1", "-1", "-1", "-1", "-1"},
		{"3", "20200122", "1", "2", "0", "-1", "-1", "-1", "-1", "-1"},
	}
	if !reflect.DeepEqual(data, wantData) {
		t.Fatalf("data = %v, want %v", data, wantData)
	}

	st := b.Stats()
	want := BuildStats{Observations: 4, Duplicates: 1, Dates: 2, Locations: 1, Pandemics: 2, Facts: 3}
	if st != want {
		t.Fatalf("stats = %+v, want %+v", st, want)
	}
}

func TestStarBuilder_ProvinceIsSeparateLocation(t *testing.T) {
	t.Parallel()

	b := newBuilder(t)
	b.Add(obs("COVID-19", "2020-01-22", "Canada", "Ontario", 1))
	b.Add(obs("COVID-19", "2020-01-22", "Canada", "Quebec", 1))
	b.Add(obs("COVID-19", "2020-01-22", "Canada", "", 2))

	if st := b.Stats(); st.Locations != 3 || st.Facts != 3 {
		t.Fatalf("stats = %+v, want 3 locations and 3 facts", st)
	}
}

func TestStarBuilder_UnknownColumnsRenderEmpty(t *testing.T) {
	t.Parallel()

	ts := config.TableStructures{
		{Name: "calendar", Columns: []string{"date_id", "date", "week"}},
		{Name: "location", Columns: []string{"location_id", "country"}},
		{Name: "pandemie", Columns: []string{"pandemie_id", "nom"}},
		{Name: "data", Columns: []string{"data_id", "date_id", "location_id", "pandemie_id", "confirmed", "note"}},
	}
	star, err := schema.Build(ts, []string{"Confirmed"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewStarBuilder(star, StarOptions{Measures: []string{"Confirmed"}})
	if err != nil {
		t.Fatal(err)
	}
	b.Add(obs("COVID-19", "2021-03-04", "Chile", "", 8))

	cal, _ := b.Rows("calendar")
	if !reflect.DeepEqual(cal, [][]string{{"20210304", "2021-03-04", ""}}) {
		t.Fatalf("calendar = %v", cal)
	}
	data, _ := b.Rows("data")
	if !reflect.DeepEqual(data, [][]string{{"1", "20210304", "1", "1", "8", ""}}) {
		t.Fatalf("data = %v", data)
	}
}

func TestNewStarBuilder_Errors(t *testing.T) {
	t.Parallel()

	noFact := schema.Star{Tables: []schema.Table{{Name: "calendar", Columns: []schema.Column{{Name: "date_id"}}}}}
	if _, err := NewStarBuilder(noFact, StarOptions{}); err == nil {
		t.Fatal("want error without fact table")
	}

	ts := config.TableStructures{
		{Name: "vaccine", Columns: []string{"vaccine_id", "name"}},
		{Name: "data", Columns: []string{"data_id", "vaccine_id"}},
	}
	star, err := schema.Build(ts, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewStarBuilder(star, StarOptions{}); err == nil {
		t.Fatal("want error for unknown dimension")
	}

	b := newBuilder(t)
	if _, err := b.Rows("nope"); err == nil {
		t.Fatal("want error for unknown table")
	}
}

func TestDateID(t *testing.T) {
	t.Parallel()

	if got := DateID(time.Date(2022, 12, 5, 0, 0, 0, 0, time.UTC)); got != 20221205 {
		t.Fatalf("DateID = %d", got)
	}
}

func BenchmarkStarBuilderAdd(b *testing.B) {
	sb := newBuilder(b)
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	countries := []string{"France", "Italy", "Spain", "Peru", "Chile"}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		o := Observation{Pandemic: "COVID-19", Date: base.AddDate(0, 0, i/len(countries)), Country: countries[i%len(countries)]}
		sb.Add(o)
	}
}
