package cluster

import (
	"errors"
	"strings"
	"testing"
)

func TestRegistryLoadPreservesOrder(t *testing.T) {
	r := NewRegistry()
	err := r.Load([]ClusterConfig{
		{Name: "sqlclu-02"},
		{Name: "filesrv", Address: "filesrv.corp.example.com"},
		{Name: "sqlclu-01"},
	})
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	got := strings.Join(r.Names(), ",")
	if got != "sqlclu-02,filesrv,sqlclu-01" {
		t.Errorf("Names() = %q, want load order", got)
	}
	if r.Count() != 3 {
		t.Errorf("Count() = %d, want 3", r.Count())
	}
	if list := r.List(); list[1].Name != "filesrv" {
		t.Errorf("List()[1] = %q, want filesrv", list[1].Name)
	}
}

func TestRegistryLoadRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	err := r.Load([]ClusterConfig{{Name: "a"}, {Name: "a"}})
	if err == nil {
		t.Fatal("Load() should fail on duplicate names")
	}
	if !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("error = %v, want duplicate cluster name", err)
	}
}

func TestRegistryTarget(t *testing.T) {
	r := NewRegistry()
	if err := r.Load([]ClusterConfig{{Name: "filesrv", Address: "filesrv.corp.example.com"}, {Name: "sql"}}); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	tests := []struct {
		name string
		want string
	}{
		{"filesrv", "filesrv.corp.example.com"},
		{"sql", "sql"},
		{"adhoc", "adhoc"},
	}
	for _, tt := range tests {
		if got := r.Target(tt.name); got != tt.want {
			t.Errorf("Target(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
	if r.Get("adhoc") != nil {
		t.Error("Get() of unregistered cluster should be nil")
	}
}

func TestClusterConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ClusterConfig
		wantErr string
	}{
		{"valid minimal", ClusterConfig{Name: "sqlclu-01"}, ""},
		{"valid fqdn address", ClusterConfig{Name: "sql", Address: "sql.corp.example.com"}, ""},
		{"valid labels", ClusterConfig{Name: "sql", Labels: map[string]string{"team/owner": "dba", "tier": ""}}, ""},
		{"missing name", ClusterConfig{}, "name is required"},
		{"bad name", ClusterConfig{Name: "sql clu"}, "is invalid"},
		{"bad address", ClusterConfig{Name: "sql", Address: "http://sql"}, "address"},
		{"bad label key", ClusterConfig{Name: "sql", Labels: map[string]string{"a b": "x"}}, "invalid label key"},
		{"bad label value", ClusterConfig{Name: "sql", Labels: map[string]string{"tier": "a/b"}}, "invalid label value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateName(t *testing.T) {
	for _, name := range []string{"sqlclu-01", "sql.corp.example.com", "FS_02"} {
		if err := ValidateName(name); err != nil {
			t.Errorf("ValidateName(%q) = %v, want nil", name, err)
		}
	}
	for _, name := range []string{"", "sql clu", "x'; Get-Process; '", "x\u2019; Start-Process calc; \u2019", "<img>"} {
		if err := ValidateName(name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("ValidateName(%q) = %v, want ErrInvalidName", name, err)
		}
	}
}
