package csvimport

import (
	"reflect"
	"testing"

	"github.com/ramonehamilton/binderkeep/internal/binder"
)

func TestSplitLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    []string
		wantErr bool
	}{
		{"plain", "4,Lightning Bolt,M10", []string{"4", "Lightning Bolt", "M10"}, false},
		{"quoted comma", `1,"Teferi, Hero of Dominaria",DOM`, []string{"1", "Teferi, Hero of Dominaria", "DOM"}, false},
		{"escaped quote", `1,"The ""Ace"" Card"`, []string{"1", `The "Ace" Card`}, false},
		{"trailing empty", "1,Opt,", []string{"1", "Opt", ""}, false},
		{"spaces trimmed", " 2 , Shock ", []string{"2", "Shock"}, false},
		{"unterminated", `1,"Opt`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := splitLine(tt.line)
			if (err != nil) != tt.wantErr {
				t.Fatalf("splitLine(%q) error = %v, wantErr %v", tt.line, err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("splitLine(%q) = %q, want %q", tt.line, got, tt.want)
			}
		})
	}
}

func TestParseQuantity(t *testing.T) {
	tests := map[string]int{
		"4x":  4,
		"4":   4,
		"4X":  4,
		" 3 ": 3,
		"":            1,
		"abc": 1,
		"0":   1,
		"-2":  1,
	}
	for in, want := range tests {
		if got := ParseQuantity(in); got != want {
			t.Errorf("ParseQuantity(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestParseFinish(t *testing.T) {
	tests := map[string]binder.Finish{
		"Foil":        binder.FinishFoil,
		"foil ":       binder.FinishFoil,
		"FOIL":        binder.FinishFoil,
		"":            binder.FinishNonfoil,
		"Normal":      binder.FinishNonfoil,
		"etched":      binder.FinishEtched,
		"Foil Etched": binder.FinishEtched,
		"yes":         binder.FinishNonfoil,
	}
	for in, want := range tests {
		if got := ParseFinish(in); got != want {
			t.Errorf("ParseFinish(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestCleanSet(t *testing.T) {
	tests := map[string]string{
		"(M21)":      "M21",
		" ( m21 ) ":  "m21",
		"Dominaria":  "Dominaria",
		"(Dominaria": "(Dominaria",
		"":           "",
	}
	for in, want := range tests {
		if got := CleanSet(in); got != want {
			t.Errorf("CleanSet(%q) = %q, want %q", in, got, want)
		}
	}
}
