package main

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/newtron-network/ctrlcfg/pkg/remediation"
)

func TestParseSubstitutions(t *testing.T) {
	subs, err := parseSubstitutions([]string{`secret \S+=>secret <removed>`, `^! Time.*=>`})
	if err != nil {
		t.Fatalf("parseSubstitutions() error = %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("len = %d, want 2", len(subs))
	}
	if subs[0].Search != `secret \S+` || subs[0].Replace != "secret <removed>" {
		t.Errorf("subs[0] = %+v", subs[0])
	}
	if subs[1].Search != `^! Time.*` || subs[1].Replace != "" {
		t.Errorf("subs[1] = %+v", subs[1])
	}

	for _, bad := range []string{"no-arrow", "=>replacement"} {
		if _, err := parseSubstitutions([]string{bad}); err == nil {
			t.Errorf("parseSubstitutions(%q) expected error", bad)
		}
	}
}

func TestParseRecord(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		rec, err := parseRecord("rec.json", []byte(`{"device":"apic1","feature":"NTP","intended":"{}","actual":"{}"}`))
		if err != nil {
			t.Fatalf("parseRecord() error = %v", err)
		}
		if rec.Device != "apic1" || rec.FeatureKey() != "ntp" {
			t.Errorf("rec = %+v", rec)
		}
		if rec.ConfigType != remediation.ConfigJSON {
			t.Errorf("ConfigType = %q, want json default", rec.ConfigType)
		}
	})

	t.Run("yaml", func(t *testing.T) {
		data := "device: ns1\nfeature: snmp\nconfig_type: xml\nintended: <snmp/>\nactual: <snmp/>\n"
		rec, err := parseRecord("rec.yml", []byte(data))
		if err != nil {
			t.Fatalf("parseRecord() error = %v", err)
		}
		if rec.Device != "ns1" || rec.Type() != remediation.ConfigXML || rec.Intended != "<snmp/>" {
			t.Errorf("rec = %+v", rec)
		}
	})

	t.Run("missing device", func(t *testing.T) {
		if _, err := parseRecord("rec.json", []byte(`{"feature":"ntp"}`)); err == nil {
			t.Error("expected error for missing device")
		}
	})

	t.Run("malformed", func(t *testing.T) {
		if _, err := parseRecord("rec.json", []byte(`{`)); err == nil {
			t.Error("expected error for malformed json")
		}
	})
}

func TestParseLast(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"24h", 24 * time.Hour},
		{"90m", 90 * time.Minute},
		{"7d", 7 * 24 * time.Hour},
	}
	for _, tt := range tests {
		got, err := parseLast(tt.input)
		if err != nil {
			t.Errorf("parseLast(%q) error = %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseLast(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
	for _, bad := range []string{"", "xd", "soon"} {
		if _, err := parseLast(bad); err == nil {
			t.Errorf("parseLast(%q) expected error", bad)
		}
	}
}

func TestIsMetaCommand(t *testing.T) {
	root := &cobra.Command{Use: "ctrlcfg"}
	settings := &cobra.Command{Use: "settings"}
	show := &cobra.Command{Use: "show"}
	backup := &cobra.Command{Use: "backup"}
	settings.AddCommand(show)
	root.AddCommand(settings, backup)

	if !isMetaCommand(show) {
		t.Error("settings show should be a meta command")
	}
	if isMetaCommand(backup) {
		t.Error("backup should not be a meta command")
	}
}

func TestPromptCredentials(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	go func() {
		w.WriteString("admin\ns3cret pass\n")
		w.Close()
	}()

	creds, err := promptCredentials(r, io.Discard)
	if err != nil {
		t.Fatalf("promptCredentials() error = %v", err)
	}
	if creds.Username != "admin" || creds.Password != "s3cret pass" {
		t.Errorf("creds = %+v", creds)
	}

	got, _ := fixedProvider{creds: creds}.Credentials(context.Background(), "any")
	if got != creds {
		t.Errorf("fixedProvider = %+v, want %+v", got, creds)
	}
}
