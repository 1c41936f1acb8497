package profile

import (
	"errors"
	"testing"

	domainErrors "github.com/jbctechsolutions/docsync/internal/domain/errors"
)

func TestDefault(t *testing.T) {
	p := Default()
	if p.ID != "default-trade" || p.Name != "TradeStars KB" {
		t.Errorf("Default() = %+v", p)
	}
	if p.Endpoint() != "https://api.dify.ai/v1" {
		t.Errorf("Endpoint() = %q", p.Endpoint())
	}
	if p.HasCredentials() {
		t.Error("default profile should have no credentials")
	}
}

func TestProfile_Endpoint(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"", DefaultBaseURL},
		{"http://dify.local/v1/", "http://dify.local/v1"},
		{"http://dify.local/v1", "http://dify.local/v1"},
	}
	for _, tt := range tests {
		if got := (Profile{BaseURL: tt.base}).Endpoint(); got != tt.want {
			t.Errorf("Endpoint(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}

func TestSet_AddRemove(t *testing.T) {
	set := Set{Default()}

	set, err := set.Add(Profile{ID: "p2", Name: "Second"})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if _, err := set.Add(Profile{ID: "p2"}); !errors.Is(err, domainErrors.ErrDuplicateProfileID) {
		t.Errorf("Add(duplicate) error = %v", err)
	}
	if _, err := set.Add(Profile{}); !errors.Is(err, domainErrors.ErrProfileIDRequired) {
		t.Errorf("Add(empty id) error = %v", err)
	}

	set, err = set.Remove(DefaultID)
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if len(set) != 1 || set[0].ID != "p2" {
		t.Fatalf("after Remove() set = %+v", set)
	}

	if _, err := set.Remove("p2"); !errors.Is(err, domainErrors.ErrLastProfile) {
		t.Errorf("Remove(last) error = %v, want ErrLastProfile", err)
	}
	if _, err := set.Remove("missing"); !errors.Is(err, domainErrors.ErrProfileNotFound) {
		t.Errorf("Remove(missing) error = %v, want ErrProfileNotFound", err)
	}
}

func TestSet_Validate(t *testing.T) {
	tests := []struct {
		name    string
		set     Set
		wantErr bool
	}{
		{"empty", Set{}, true},
		{"single", Set{Default()}, false},
		{"duplicate", Set{{ID: "a"}, {ID: "a"}}, true},
		{"missing id", Set{{Name: "x"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.set.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
