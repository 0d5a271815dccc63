package config

// Table names of the warehouse.
const (
	TableCalendar = "calendar"
	TableLocation = "location"
	TablePandemie = "pandemie"
	TableData     = "data"
)

// Source names of the input datasets.
const (
	SourceCOVID19     = "COVID19"
	SourceMPOX        = "MPOX"
	SourceWorldometer = "WORLDOMETER"
)

// Defaults returns the declared configuration. Every call returns fresh
// slices and maps so callers may mutate the result freely.
func Defaults() Settings {
	return Settings{
		Job: "epiviz",
		Paths: Paths{
			Raw:          "./donnees/brutes/",
			Intermediate: "./donnees/intermediaires/",
			Transformed:  "./donnees/transformees/",
		},
		Sources: Sources{
			{Name: SourceCOVID19, File: "covid_19_clean_complete.csv"},
			{Name: SourceMPOX, File: "owid-monkeypox-data.csv"},
			{Name: SourceWorldometer, File: "worldometer_coronavirus_daily_data.csv"},
		},
		DB: DBConfig{
			Driver:   DriverMySQL,
			Host:     "localhost",
			User:     "root",
			Password: "",
			Database: "epiviz",
			Port:     3306,
		},
		Transform: TransformParams{
			DateFormat:     "%Y-%m-%d",
			NumericColumns: []string{"Confirmed", "Deaths", "Recovered", "Active", "New_cases", "New_deaths"},
			MissingValue:   0,
			CountryAliases: map[string]string{
				"US":               "United States",
				"USA":              "United States",
				"UK":               "United Kingdom",
				"Mainland China":   "China",
				"Korea, South":     "South Korea",
				"S. Korea":         "South Korea",
				"Czechia":          "Czech Republic",
				"Taiwan*":          "Taiwan",
				"Congo (Kinshasa)": "Democratic Republic of Congo",
			},
		},
		Tables: TableStructures{
			{Name: TableCalendar, Columns: []string{"date_id", "date", "year", "month", "day"}},
			{Name: TableLocation, Columns: []string{"location_id", "country", "province", "continent", "latitude", "longitude", "who_region"}},
			{Name: TablePandemie, Columns: []string{"pandemie_id", "nom", "description"}},
			{Name: TableData, Columns: []string{"data_id", "date_id", "location_id", "pandemie_id", "confirmed", "deaths", "recovered", "active", "new_cases", "new_deaths"}},
		},
		Runtime: Runtime{
			BatchSize:        5000,
			ChannelBuffer:    4096,
			TransformWorkers: 4,
		},
	}
}
