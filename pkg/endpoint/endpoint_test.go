package endpoint

import (
	"errors"
	"strings"
	"testing"

	"github.com/newtron-network/ctrlcfg/pkg/tree"
)

func mustDecode(t *testing.T, s string) tree.Value {
	t.Helper()
	v, err := tree.Decode([]byte(s))
	if err != nil {
		t.Fatalf("Decode(%s) error = %v", s, err)
	}
	return v
}

func mustContext(t *testing.T, s string) *ConfigContext {
	t.Helper()
	cc, err := ParseConfigContext([]byte(s))
	if err != nil {
		t.Fatalf("ParseConfigContext() error = %v", err)
	}
	return cc
}

func TestFeatureName(t *testing.T) {
	tests := []struct {
		raw, want string
	}{
		{"ntp_backup", "ntp"},
		{"snmp_trap_backup", "snmp_trap"},
		{"ntp_remediation", "ntp"},
		{"Syslog-Backup", "syslog"},
		{"Port Channel-backup", "port_channel"},
		{"AAA backup", "aaa"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := FeatureName(tt.raw); got != tt.want {
			t.Errorf("FeatureName(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestRenderURI(t *testing.T) {
	data := TemplateData(map[string]any{"name": "leaf1", "serial": "Q2XX"}, map[string]string{"networkId": "N_1"})

	got, err := RenderURI("api/node/mo/{{ .obj.name }}.json", data)
	if err != nil {
		t.Fatalf("RenderURI() error = %v", err)
	}
	if got != "api/node/mo/leaf1.json" {
		t.Errorf("RenderURI() = %q", got)
	}

	got, err = RenderURI("networks/{{ .params.networkId }}/devices/{{ .obj.serial }}", data)
	if err != nil || got != "networks/N_1/devices/Q2XX" {
		t.Errorf("RenderURI(params) = %q, %v", got, err)
	}

	if got, _ := RenderURI("api/static", nil); got != "api/static" {
		t.Errorf("RenderURI(static) = %q", got)
	}
}

func TestRenderURIErrors(t *testing.T) {
	data := TemplateData(map[string]any{"name": "leaf1"}, nil)
	for _, tmpl := range []string{"api/{{ .obj.missing }}", "api/{{ .obj.name "} {
		_, err := RenderURI(tmpl, data)
		var te *TemplateError
		if !errors.As(err, &te) {
			t.Errorf("RenderURI(%q) error = %v, want *TemplateError", tmpl, err)
			continue
		}
		if !errors.Is(err, ErrTemplate) {
			t.Errorf("RenderURI(%q) error should match ErrTemplate", tmpl)
		}
	}
}

func TestRenderURIEmpty(t *testing.T) {
	data := TemplateData(map[string]any{"base": ""}, nil)
	_, err := RenderURI("{{ .obj.base }}", data)
	if !errors.Is(err, ErrTemplate) || !errors.Is(err, ErrEmptyURI) {
		t.Errorf("RenderURI(empty) error = %v, want ErrTemplate and ErrEmptyURI", err)
	}
}

func TestBuildQuery(t *testing.T) {
	frags := []string{"query-target=subtree", "target-subtree-class=datetimeNtpProv"}
	got := BuildQuery("https://apic/api/node/class/x.json/", frags)
	want := "https://apic/api/node/class/x.json?query-target=subtree&target-subtree-class=datetimeNtpProv"
	if got != want {
		t.Errorf("BuildQuery() = %q, want %q", got, want)
	}
	if len(frags) != 2 {
		t.Errorf("BuildQuery() modified fragments: %v", frags)
	}
	if again := BuildQuery("https://apic/api/node/class/x.json/", frags); again != want {
		t.Errorf("second BuildQuery() = %q, want %q", again, want)
	}
	if got := BuildQuery("https://apic/x/", nil); got != "https://apic/x/" {
		t.Errorf("BuildQuery(no fragments) = %q", got)
	}
}

func TestParseFeatureEndpoints(t *testing.T) {
	cc := mustContext(t, `{
		"backup_endpoints": ["ntp_backup"],
		"ntp_backup": [{
			"endpoint": "api/ntp",
			"method": "get",
			"query": ["rsp-subtree=full"],
			"jmespath": {"servers": "imdata[*].name", "prefer": "imdata[*].preferred"},
			"parameters": {"optional": ["servers"], "non_optional": ["name"]}
		}]
	}`)
	list, found, err := cc.Endpoints("ntp_backup")
	if err != nil || !found {
		t.Fatalf("Endpoints() = %v, %v", found, err)
	}
	if len(list) != 1 {
		t.Fatalf("len(list) = %d, want 1", len(list))
	}
	d := list[0]
	if d.HTTPMethod() != "GET" {
		t.Errorf("HTTPMethod() = %q, want GET", d.HTTPMethod())
	}
	if len(d.Fields) != 2 || d.Fields[0].Name != "servers" || d.Fields[1].Name != "prefer" {
		t.Errorf("Fields = %+v, want ordered servers, prefer", d.Fields)
	}
	if !d.HasOptional() || d.Required()[0] != "name" {
		t.Errorf("Parameters = %+v", d.Parameters)
	}
	if got := d.AllParameters(); len(got) != 2 || got[0] != "servers" || got[1] != "name" {
		t.Errorf("AllParameters() = %v", got)
	}

	names, err := cc.BackupEndpoints()
	if err != nil || len(names) != 1 || names[0] != "ntp_backup" {
		t.Errorf("BackupEndpoints() = %v, %v", names, err)
	}
	if _, found, err := cc.Endpoints("snmp_backup"); found || err != nil {
		t.Errorf("Endpoints(absent) = %v, %v, want not found", found, err)
	}
}

func TestParseFeatureEndpointsErrors(t *testing.T) {
	tests := []struct {
		name   string
		value  string
		reason string
	}{
		{"not a list", `{"endpoint": "x"}`, "expected a list"},
		{"missing endpoint", `[{"method": "GET"}]`, "endpoint is required"},
		{"bad method", `[{"endpoint": "x", "method": "FETCH"}]`, "must be one of"},
		{"bad jmespath", `[{"endpoint": "x", "jmespath": {"a": "imdata[*"}}]`, "jmespath.a"},
		{"non-string expr", `[{"endpoint": "x", "jmespath": {"a": 1}}]`, "string expression"},
		{"bad query", `[{"endpoint": "x", "query": "a=b"}]`, "query"},
		{"bad params", `[{"endpoint": "x", "parameters": {"optional": "a"}}]`, "parameters"},
		{"bad transpose", `[{"endpoint": "x", "transpose": "yes"}]`, "transpose"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFeatureEndpoints("ntp_backup", mustDecode(t, tt.value))
			var de *DeclarationError
			if !errors.As(err, &de) {
				t.Fatalf("error = %v, want *DeclarationError", err)
			}
			if !errors.Is(err, ErrDeclaration) {
				t.Error("error should match ErrDeclaration")
			}
			if !strings.Contains(err.Error(), tt.reason) {
				t.Errorf("error = %q, want it to mention %q", err.Error(), tt.reason)
			}
		})
	}
}

func TestConfigContextAccessors(t *testing.T) {
	cc := mustContext(t, `{"organization_id": "123", "retries": 4, "flag": true, "backup_endpoints": "ntp"}`)
	if cc.String("organization_id") != "123" || cc.String("retries") != "4" || cc.String("flag") != "true" {
		t.Errorf("String() mismatch")
	}
	if cc.String("missing") != "" {
		t.Errorf("String(missing) = %q", cc.String("missing"))
	}
	if _, err := cc.BackupEndpoints(); !errors.Is(err, ErrDeclaration) {
		t.Errorf("BackupEndpoints() on a string error = %v, want ErrDeclaration", err)
	}
	if names, err := cc.RemediationEndpoints(); names != nil || err != nil {
		t.Errorf("RemediationEndpoints(absent) = %v, %v", names, err)
	}
	if _, err := NewConfigContext(tree.String("x")); !errors.Is(err, ErrDeclaration) {
		t.Errorf("NewConfigContext(string) error = %v", err)
	}
	if RemediationKey("ntp") != "ntp_remediation" {
		t.Errorf("RemediationKey() = %q", RemediationKey("ntp"))
	}
}

func descriptor(t *testing.T, s string) *Descriptor {
	t.Helper()
	list, err := ParseFeatureEndpoints("test", mustDecode(t, "["+s+"]"))
	if err != nil {
		t.Fatalf("ParseFeatureEndpoints() error = %v", err)
	}
	return list[0]
}

func TestExtractFields(t *testing.T) {
	tests := []struct {
		name     string
		desc     string
		response string
		want     string
	}{
		{
			name:     "row transpose",
			desc:     `{"endpoint": "x", "jmespath": {"names": "data[*].name", "ids": "data[*].id"}}`,
			response: `{"data": [{"name": "a", "id": "1"}, {"name": "b", "id": "2"}]}`,
			want:     `[{"names":"a","ids":"1"},{"names":"b","ids":"2"}]`,
		},
		{
			name:     "single length-one list stays a dict",
			desc:     `{"endpoint": "x", "jmespath": {"names": "data[*].name"}}`,
			response: `{"data": [{"name": "a"}]}`,
			want:     `{"names":["a"]}`,
		},
		{
			name:     "mixed scalars stay a dict",
			desc:     `{"endpoint": "x", "jmespath": {"names": "data[*].name", "total": "total"}}`,
			response: `{"data": [{"name": "a"}, {"name": "b"}], "total": 2}`,
			want:     `{"names":["a","b"],"total":2}`,
		},
		{
			name:     "unequal lengths stay a dict",
			desc:     `{"endpoint": "x", "jmespath": {"a": "a", "b": "b"}}`,
			response: `{"a": [1, 2], "b": [1]}`,
			want:     `{"a":[1,2],"b":[1]}`,
		},
		{
			name:     "null recorded",
			desc:     `{"endpoint": "x", "jmespath": {"server": "ntp.server", "missing": "ntp.nope"}}`,
			response: `{"ntp": {"server": "10.0.0.1"}}`,
			want:     `{"server":"10.0.0.1","missing":null}`,
		},
		{
			name:     "transpose disabled",
			desc:     `{"endpoint": "x", "transpose": false, "jmespath": {"a": "a", "b": "b"}}`,
			response: `{"a": [1, 2], "b": [3, 4]}`,
			want:     `{"a":[1,2],"b":[3,4]}`,
		},
		{
			name:     "transpose forced for one row",
			desc:     `{"endpoint": "x", "transpose": true, "jmespath": {"a": "a"}}`,
			response: `{"a": [1]}`,
			want:     `[{"a":1}]`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractFields(descriptor(t, tt.desc), mustDecode(t, tt.response))
			if err != nil {
				t.Fatalf("ExtractFields() error = %v", err)
			}
			if !tree.Equal(got, mustDecode(t, tt.want)) {
				s, _ := tree.EncodeString(got, "")
				t.Errorf("ExtractFields() = %s, want %s", s, tt.want)
			}
		})
	}
}

func TestExtractFieldsRuntimeError(t *testing.T) {
	d := descriptor(t, `{"endpoint": "x", "jmespath": {"n": "length(name)"}}`)
	if _, err := ExtractFields(d, mustDecode(t, `{"name": 5}`)); err == nil {
		t.Error("ExtractFields() expected error for invalid function argument")
	}
}

func TestUsable(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{`{}`, false},
		{`[]`, false},
		{`null`, false},
		{`{"a": null, "b": []}`, false},
		{`{"a": null, "b": "x"}`, true},
		{`[{"a": null}]`, true},
		{`{"a": false}`, true},
	}
	for _, tt := range tests {
		if got := Usable(mustDecode(t, tt.value)); got != tt.want {
			t.Errorf("Usable(%s) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestResolveParams(t *testing.T) {
	params := map[string]string{"organizationId": "o1", "networkId": "n1"}
	got := ResolveParams([]string{"organizationid", "serial"}, params)
	if len(got) != 1 || got["organizationId"] != "o1" {
		t.Errorf("ResolveParams() = %v", got)
	}
	if got := ResolveParams(nil, params); len(got) != 0 {
		t.Errorf("ResolveParams(nil) = %v", got)
	}
}

func TestAccumulator(t *testing.T) {
	var dicts Accumulator
	if err := dicts.Add(mustDecode(t, `{"a": 1, "b": 2}`)); err != nil {
		t.Fatal(err)
	}
	if err := dicts.Add(mustDecode(t, `{"c": 3, "a": 9}`)); err != nil {
		t.Fatal(err)
	}
	got, _ := tree.EncodeString(dicts.Result(), "")
	if got != `{"a":9,"b":2,"c":3}` {
		t.Errorf("dict Result() = %s", got)
	}

	var lists Accumulator
	lists.Add(mustDecode(t, `[1]`))
	lists.Add(mustDecode(t, `[2, 3]`))
	got, _ = tree.EncodeString(lists.Result(), "")
	if got != `[1,2,3]` {
		t.Errorf("list Result() = %s", got)
	}

	var mixed Accumulator
	mixed.Add(mustDecode(t, `[1]`))
	err := mixed.Add(mustDecode(t, `{"a": 1}`))
	var se *ShapeError
	if !errors.As(err, &se) || !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("mixed Add() error = %v, want *ShapeError", err)
	}

	var empty Accumulator
	if !empty.Empty() || empty.Result() != nil {
		t.Error("new Accumulator should be empty")
	}
}
