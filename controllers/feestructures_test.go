package controllers

import (
	"strings"
	"testing"
)

func TestParseCSVRows(t *testing.T) {
	input := strings.Join([]string{
		"class,fee head code,amount,frequency",
		"Grade 1,TUITION,24000,monthly",
		"Grade 1,TRANSPORT,8000,QUARTERLY",
		"Grade 2,LIBRARY,bad,annually",
		"Grade 2,LIBRARY,1200",
	}, "\n")

	rows, parseErrors, err := parseCSVRows(strings.NewReader(input))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 valid rows, got %d", len(rows))
	}
	if len(parseErrors) != 2 {
		t.Fatalf("expected 2 row errors, got %d: %v", len(parseErrors), parseErrors)
	}

	if rows[0].className != "Grade 1" || rows[0].headCode != "TUITION" ||
		rows[0].amount != 24000 || rows[0].frequency != "monthly" {
		t.Fatalf("unexpected first row: %+v", rows[0])
	}
	// Frequency is normalized to lowercase.
	if rows[1].frequency != "quarterly" {
		t.Fatalf("expected normalized frequency, got %q", rows[1].frequency)
	}
}

func TestLooksLikeHeader(t *testing.T) {
	tests := []struct {
		record []string
		want   bool
	}{
		{[]string{"class", "head", "amount", "frequency"}, true},
		{[]string{" Class Name ", "head", "amount", "frequency"}, true},
		{[]string{"Grade 1", "TUITION", "24000", "monthly"}, false},
		{nil, false},
	}
	for _, tc := range tests {
		if got := looksLikeHeader(tc.record); got != tc.want {
			t.Errorf("looksLikeHeader(%v) = %v, want %v", tc.record, got, tc.want)
		}
	}
}

func TestRecordToRow(t *testing.T) {
	tests := []struct {
		name    string
		record  []string
		wantErr bool
	}{
		{"valid", []string{"Grade 1", "TUITION", "24000", "monthly"}, false},
		{"trailing column ignored", []string{"Grade 1", "TUITION", "24000", "monthly", "notes"}, false},
		{"too few columns", []string{"Grade 1", "TUITION", "24000"}, true},
		{"zero amount", []string{"Grade 1", "TUITION", "0", "monthly"}, true},
		{"negative amount", []string{"Grade 1", "TUITION", "-5", "monthly"}, true},
		{"bad frequency", []string{"Grade 1", "TUITION", "24000", "weekly"}, true},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := recordToRow(tc.record, 2)
			if tc.wantErr && err == nil {
				t.Fatal("expected an error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
