package validation

import (
	"strings"
	"testing"
)

func TestSplitCSVLine(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name string
		line string
		want []string
	}{
		{
			name: "simple fields",
			line: "a,b,c",
			want: []string{"a", "b", "c"},
		},
		{
			name: "quoted field with embedded comma",
			line: `"Smith, John",12345,2024-01-01`,
			want: []string{"Smith, John", "12345", "2024-01-01"},
		},
		{
			name: "doubled quotes inside quoted field",
			line: `"said ""hello""",x`,
			want: []string{`said "hello"`, "x"},
		},
		{
			name: "empty fields",
			line: "a,,c,",
			want: []string{"a", "", "c", ""},
		},
		{
			name: "single field",
			line: "only",
			want: []string{"only"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitCSVLine(tt.line)
			if len(got) != len(tt.want) {
				t.Fatalf("SplitCSVLine(%q) = %v, want %v", tt.line, got, tt.want)
			}

			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("field %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestDetectFormat(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		ext  string
		want Format
	}{
		{"csv", FormatCSV},
		{".csv", FormatCSV},
		{"CSV", FormatCSV},
		{"json", FormatJSON},
		{".jsonl", FormatJSON},
		{"ndjson", FormatJSON},
		{"parquet", FormatUnsupported},
		{"", FormatUnsupported},
	}

	for _, tt := range tests {
		if got := DetectFormat(tt.ext); got != tt.want {
			t.Errorf("DetectFormat(%q) = %v, want %v", tt.ext, got, tt.want)
		}
	}
}

func TestSampleSize(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	if got := SampleSize(FormatCSV); got != 8*1024 {
		t.Errorf("CSV sample size = %d, want %d", got, 8*1024)
	}

	if got := SampleSize(FormatJSON); got != 16*1024 {
		t.Errorf("JSON sample size = %d, want %d", got, 16*1024)
	}

	if got := SampleSize(FormatUnsupported); got != 0 {
		t.Errorf("unsupported sample size = %d, want 0", got)
	}
}

func TestValidateCSV(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	schema := []ColumnSpec{
		{Name: "Date", Type: TypeDate},
		{Name: "License_Number", Type: TypeNumber},
		{Name: "Board_Code", Type: TypeString},
	}

	t.Run("valid file", func(t *testing.T) {
		sample := []byte("Date,License_Number,Board_Code\n01/15/2024,12345,MD\n")

		result := Validate(sample, FormatCSV, schema)
		if !result.Valid {
			t.Fatalf("expected valid, got errors: %v", result.Errors)
		}
	})

	t.Run("case-insensitive header match", func(t *testing.T) {
		sample := []byte("date,license_number,board_code\n2024-01-15,99,X\n")

		result := Validate(sample, FormatCSV, schema)
		if !result.Valid {
			t.Fatalf("expected valid, got errors: %v", result.Errors)
		}
	})

	t.Run("missing required column", func(t *testing.T) {
		sample := []byte("Date,Board_Code\n01/15/2024,MD\n")

		result := Validate(sample, FormatCSV, schema)
		if result.Valid {
			t.Fatal("expected invalid for missing column")
		}

		if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "License_Number") {
			t.Errorf("unexpected errors: %v", result.Errors)
		}
	})

	t.Run("bad date value", func(t *testing.T) {
		sample := []byte("Date,License_Number,Board_Code\nnot-a-date,12345,MD\n")

		result := Validate(sample, FormatCSV, schema)
		if result.Valid {
			t.Fatal("expected invalid for bad date")
		}
	})

	t.Run("bad number value", func(t *testing.T) {
		sample := []byte("Date,License_Number,Board_Code\n01/15/2024,abc,MD\n")

		result := Validate(sample, FormatCSV, schema)
		if result.Valid {
			t.Fatal("expected invalid for bad number")
		}
	})

	t.Run("empty value skips type check", func(t *testing.T) {
		sample := []byte("Date,License_Number,Board_Code\n,,MD\n")

		result := Validate(sample, FormatCSV, schema)
		if !result.Valid {
			t.Fatalf("expected valid for empty values, got: %v", result.Errors)
		}
	})

	t.Run("header only", func(t *testing.T) {
		sample := []byte("Date,License_Number,Board_Code\n")

		result := Validate(sample, FormatCSV, schema)
		if !result.Valid {
			t.Fatalf("expected valid for header-only file, got: %v", result.Errors)
		}
	})

	t.Run("empty file", func(t *testing.T) {
		result := Validate(nil, FormatCSV, schema)
		if result.Valid {
			t.Fatal("expected invalid for empty file")
		}
	})

	t.Run("quoted header with comma", func(t *testing.T) {
		sample := []byte("\"Date\",\"License_Number\",\"Board_Code\"\n\"01/15/2024\",\"12345\",\"Smith, MD\"\n")

		result := Validate(sample, FormatCSV, schema)
		if !result.Valid {
			t.Fatalf("expected valid for quoted fields, got: %v", result.Errors)
		}
	})
}

func TestValidateJSON(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	schema := []ColumnSpec{
		{Name: "date", Type: TypeDate},
		{Name: "count", Type: TypeNumber},
	}

	t.Run("array of records", func(t *testing.T) {
		sample := []byte(`[{"date":"2024-01-15","count":10},{"date":"2024-01-16","count":20}]`)

		result := Validate(sample, FormatJSON, schema)
		if !result.Valid {
			t.Fatalf("expected valid, got: %v", result.Errors)
		}
	})

	t.Run("single object", func(t *testing.T) {
		sample := []byte(`{"date":"2024-01-15","count":10}`)

		result := Validate(sample, FormatJSON, schema)
		if !result.Valid {
			t.Fatalf("expected valid, got: %v", result.Errors)
		}
	})

	t.Run("json lines", func(t *testing.T) {
		sample := []byte("{\"date\":\"2024-01-15\",\"count\":1}\n{\"date\":\"2024-01-16\",\"count\":2}\n")

		result := Validate(sample, FormatJSON, schema)
		if !result.Valid {
			t.Fatalf("expected valid, got: %v", result.Errors)
		}
	})

	t.Run("missing field", func(t *testing.T) {
		sample := []byte(`{"date":"2024-01-15"}`)

		result := Validate(sample, FormatJSON, schema)
		if result.Valid {
			t.Fatal("expected invalid for missing field")
		}
	})

	t.Run("null value skips type check", func(t *testing.T) {
		sample := []byte(`{"date":null,"count":null}`)

		result := Validate(sample, FormatJSON, schema)
		if !result.Valid {
			t.Fatalf("expected valid for null values, got: %v", result.Errors)
		}
	})

	t.Run("empty array", func(t *testing.T) {
		sample := []byte(`[]`)

		result := Validate(sample, FormatJSON, schema)
		if !result.Valid {
			t.Fatalf("expected valid for empty array, got: %v", result.Errors)
		}
	})

	t.Run("number as string", func(t *testing.T) {
		sample := []byte(`{"date":"2024-01-15","count":"42"}`)

		result := Validate(sample, FormatJSON, schema)
		if !result.Valid {
			t.Fatalf("expected valid for numeric string, got: %v", result.Errors)
		}
	})
}

func TestValidateFailOpen(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	schema := []ColumnSpec{{Name: "x", Type: TypeString}}

	t.Run("unsupported format is valid", func(t *testing.T) {
		result := Validate([]byte{0x00, 0x01}, FormatUnsupported, schema)
		if !result.Valid {
			t.Fatal("unsupported format should skip validation")
		}
	})

	t.Run("empty schema is valid", func(t *testing.T) {
		result := Validate([]byte("anything"), FormatCSV, nil)
		if !result.Valid {
			t.Fatal("empty schema should skip validation")
		}
	})
}

func TestIsValidDate(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	valid := []string{"01/15/2024", "2024-01-15", "01-15-2024", "2024-01-15T10:30:00Z"}
	for _, v := range valid {
		if !isValidDate(v) {
			t.Errorf("isValidDate(%q) = false, want true", v)
		}
	}

	invalid := []string{"not-a-date", "15th January", "2024/01/15x"}
	for _, v := range invalid {
		if isValidDate(v) {
			t.Errorf("isValidDate(%q) = true, want false", v)
		}
	}
}

func TestIsValidNumber(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	valid := []string{"0", "42", "-3.14", "1e6", " 7 "}
	for _, v := range valid {
		if !isValidNumber(v) {
			t.Errorf("isValidNumber(%q) = false, want true", v)
		}
	}

	invalid := []string{"abc", "", "NaN", "Inf", "1.2.3"}
	for _, v := range invalid {
		if isValidNumber(v) {
			t.Errorf("isValidNumber(%q) = true, want false", v)
		}
	}
}
